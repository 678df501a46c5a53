package progress

import (
	"sort"

	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
)

// Rule is a division post-processor run after both evaluator passes. Rules
// implement cross-requirement policy that depends on relative progress
// between sibling requirements; they must tolerate missing siblings by
// skipping silently and must never mutate a requirement they do not own.
type Rule interface {
	Apply(reqs []requirement.Requirement, recs []record.Record, prog Map) error
}

// Registry maps a division code to its registered Rule. At most one rule
// runs per division.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns a Registry with the built-in division rules.
func NewRegistry() *Registry {
	reg := &Registry{rules: make(map[string]Rule)}
	reg.Register(DivEndodontics, endoRule{})
	reg.Register(DivProsthodontics, prosRule{})
	return reg
}

func (reg *Registry) Register(divisionCode string, rule Rule) {
	reg.rules[divisionCode] = rule
}

func (reg *Registry) Get(divisionCode string) (Rule, bool) {
	rule, ok := reg.rules[divisionCode]
	return rule, ok
}

// Division codes with built-in rules.
const (
	DivEndodontics    = "ENDO"
	DivProsthodontics = "PROS"
)

// Requirement labels the built-in rules look up. A division configured
// without one of these simply skips the steps that need it.
const (
	endoAnterior  = "Anterior Root Canal Treatment"
	endoMolar     = "Molar Root Canal Treatment"
	endoEmergency = "Emergency Endodontic Care"
	endoRetreat   = "Endodontic Retreatment"
	endoVital     = "Vital Pulp Therapy"

	prosRPD      = "Removable Partial Denture"
	prosMetalRPD = "Metal Framework Removable Partial Denture"
	prosAcrylRPD = "Acrylic Removable Partial Denture"
)

// transferOpts tunes one greedy transfer between two sibling requirements.
type transferOpts struct {
	axis    Axis
	keepMin float64 // the source retains at least this much
	cap     int     // max records to move; 0 means unlimited
	fillTo  float64 // stop once the destination reaches this; 0 means no target
}

// transferExcess moves confirmed records from src to dst, cheapest first.
//
// Candidates are src's confirmed refs not already part of a transfer,
// taken in ascending (value, record id) order so repeated runs move the
// same records. Each move subtracts the record's value from the source
// and adds exactly 1 at the destination: the destination counts cases
// while the source keeps the remaining sum, which preserves total mass
// for count-accounted sources. Both sides are annotated.
func transferExcess(prog Map, src, dst requirement.Requirement, opts transferOpts) {
	srcEntry, ok := prog[src.ID]
	if !ok {
		return
	}
	dstEntry, ok := prog[dst.ID]
	if !ok {
		return
	}
	if opts.fillTo > 0 && dstEntry.Current(opts.axis) >= opts.fillTo {
		return
	}

	srcLabel := axisLabel(src, opts.axis)
	dstLabel := axisLabel(dst, opts.axis)

	refs := srcEntry.Records(opts.axis)
	candidates := make([]RecordRef, 0, len(refs))
	for _, ref := range refs {
		if !ref.Pending && ref.SentTo == "" && ref.ReceivedFrom == "" {
			candidates = append(candidates, ref)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value < candidates[j].Value
		}
		return candidates[i].RecordID < candidates[j].RecordID
	})

	var moved int
	for _, cand := range candidates {
		if opts.cap > 0 && moved >= opts.cap {
			break
		}
		if srcEntry.Current(opts.axis)-cand.Value < opts.keepMin {
			break
		}
		if opts.fillTo > 0 && dstEntry.Current(opts.axis) >= opts.fillTo {
			break
		}

		srcEntry.AddCurrent(opts.axis, -cand.Value)
		srcEntry.tagSent(opts.axis, cand.RecordID, dstLabel)

		received := cand
		received.Value = 1
		received.ReceivedFrom = srcLabel
		dstEntry.AddCurrent(opts.axis, 1)
		dstEntry.appendRecord(opts.axis, received)

		moved++
	}
}

// axisLabel picks the label a transfer annotation should carry for the
// given axis; the CDA side may account under a different name.
func axisLabel(req requirement.Requirement, axis Axis) string {
	if axis == AxisCDA && req.CDAName != "" {
		return req.CDAName
	}
	return req.Name
}

func findByName(reqs []requirement.Requirement, name string) (requirement.Requirement, bool) {
	for _, req := range reqs {
		if req.Name == name {
			return req, true
		}
	}
	return requirement.Requirement{}, false
}

// endoRule redistributes endodontic overflow. Rule order matters: later
// steps read the output of earlier ones.
//
//  1. Molar excess beyond the molar minimum moves to Anterior.
//  2. Retreatment excess beyond its minimum moves to Emergency Care.
//  3. If Anterior is still short, at most one Vital Pulp Therapy record
//     moves to Anterior.
//  4. On the CDA axis, molar excess first fills any Anterior deficit, then
//     the remainder moves to Emergency Care under its CDA-side name.
type endoRule struct{}

var _ Rule = endoRule{} // interface compliance check

func (endoRule) Apply(reqs []requirement.Requirement, recs []record.Record, prog Map) error {
	anterior, okAnt := findByName(reqs, endoAnterior)
	molar, okMol := findByName(reqs, endoMolar)
	emergency, okEmg := findByName(reqs, endoEmergency)
	retreat, okRet := findByName(reqs, endoRetreat)
	vital, okVit := findByName(reqs, endoVital)

	if okMol && okAnt {
		transferExcess(prog, molar, anterior, transferOpts{
			axis:    AxisRSU,
			keepMin: molar.MinimumRSU,
		})
	}
	if okRet && okEmg {
		transferExcess(prog, retreat, emergency, transferOpts{
			axis:    AxisRSU,
			keepMin: retreat.MinimumRSU,
		})
	}
	if okVit && okAnt && anterior.MinimumRSU > 0 {
		transferExcess(prog, vital, anterior, transferOpts{
			axis:    AxisRSU,
			keepMin: vital.MinimumRSU,
			cap:     1,
			fillTo:  anterior.MinimumRSU,
		})
	}
	if okMol {
		if okAnt && anterior.MinimumCDA > 0 {
			transferExcess(prog, molar, anterior, transferOpts{
				axis:    AxisCDA,
				keepMin: molar.MinimumCDA,
				fillTo:  anterior.MinimumCDA,
			})
		}
		if okEmg {
			transferExcess(prog, molar, emergency, transferOpts{
				axis:    AxisCDA,
				keepMin: molar.MinimumCDA,
			})
		}
	}
	return nil
}

// prosRule exposes the per-type tallies behind the combined Removable
// Partial Denture total. Display only: totals are not touched.
type prosRule struct{}

var _ Rule = prosRule{} // interface compliance check

func (prosRule) Apply(reqs []requirement.Requirement, recs []record.Record, prog Map) error {
	rpd, ok := findByName(reqs, prosRPD)
	if !ok {
		return nil
	}
	entry, ok := prog[rpd.ID]
	if !ok {
		return nil
	}

	subs := []struct {
		key   string
		label string
	}{
		{key: "MRPD", label: prosMetalRPD},
		{key: "ARPD", label: prosAcrylRPD},
	}
	for _, sub := range subs {
		src, ok := findByName(reqs, sub.label)
		if !ok {
			continue
		}
		srcEntry := prog.Get(src.ID)
		if entry.SubCounts == nil {
			entry.SubCounts = make(map[string]SubCount, len(subs))
		}
		entry.SubCounts[sub.key] = SubCount{
			Verified: srcEntry.RSU,
			Pending:  srcEntry.PendingRSU,
		}
	}
	return nil
}
