package progress

import (
	"context"
	"fmt"
	"sort"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
)

type (
	// DivisionReport is one division's slice of a student's progress report.
	DivisionReport struct {
		DivisionName     string                `json:"division_name"`
		RSUCompletionPct float64               `json:"rsu_completion_pct"`
		CDACompletionPct float64               `json:"cda_completion_pct"`
		Requirements     []RequirementProgress `json:"requirements"`
	}

	// RequirementProgress is one requirement's progress inside a
	// DivisionReport. Totals are rounded to two decimals here and nowhere
	// earlier.
	RequirementProgress struct {
		RequirementID string              `json:"requirement_id"`
		Name          string              `json:"name"`
		CDAName       string              `json:"cda_name,omitempty"`
		MinimumRSU    float64             `json:"minimum_rsu"`
		MinimumCDA    float64             `json:"minimum_cda"`
		CurrentRSU    float64             `json:"current_rsu"`
		CurrentCDA    float64             `json:"current_cda"`
		PendingRSU    float64             `json:"pending_rsu"`
		PendingCDA    float64             `json:"pending_cda"`
		RSUUnit       string              `json:"rsu_unit,omitempty"`
		CDAUnit       string              `json:"cda_unit,omitempty"`
		IsExam        bool                `json:"is_exam"`
		IsSelectable  bool                `json:"is_selectable"`
		CalcMethod    string              `json:"calc_method"`
		RSUCalcHint   string              `json:"rsu_calc_hint,omitempty"`
		CDACalcHint   string              `json:"cda_calc_hint,omitempty"`
		RSURecords    []RecordRef         `json:"rsu_records"`
		CDARecords    []RecordRef         `json:"cda_records"`
		SubCounts     map[string]SubCount `json:"sub_counts,omitempty"`
	}

	ServiceInterface interface {
		Report(studentID string) ([]DivisionReport, error)
	}

	service struct {
		reqRepo  requirement.Repository
		recRepo  record.Repository
		registry *Registry
		logger   core.Logger
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(reqRepo requirement.Repository, recRepo record.Repository, registry *Registry, logger core.Logger) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(reqRepo, "reqRepo"),
		vala.IsNotNil(recRepo, "recRepo"),
		vala.IsNotNil(registry, "registry"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		reqRepo:  reqRepo,
		recRepo:  recRepo,
		registry: registry,
		logger:   logger,
	}
}

// Report computes the student's full progress report: requirements and
// records are grouped by division, each division runs pass 1, pass 2, then
// its registered rule, and the assembled divisions come back sorted by
// name. Source errors are the only fatal ones; a failing division rule
// degrades that division to its pre-rule values.
func (svc *service) Report(studentID string) ([]DivisionReport, error) {
	ctx := context.Background()

	reqs, err := svc.reqRepo.QueryRequirements(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying requirements")
	}
	recs, err := svc.recRepo.QueryRecords(ctx, &record.QueryFilter{
		StudentID: studentID,
		Statuses:  record.QualifyingStatuses,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}

	groups := groupByDivision(reqs, recs)
	reports := make([]DivisionReport, 0, len(groups))
	for _, group := range groups {
		reports = append(reports, svc.evalDivision(group))
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].DivisionName < reports[j].DivisionName
	})
	return reports, nil
}

type divisionGroup struct {
	id   string
	code string
	name string
	reqs []requirement.Requirement
	recs []record.Record
}

// groupByDivision buckets requirements by their division and records by
// the division of the requirement they reference. Records without a known
// requirement are invisible to the engine.
func groupByDivision(reqs []requirement.Requirement, recs []record.Record) []*divisionGroup {
	byDiv := make(map[string]*divisionGroup)
	reqDiv := make(map[string]string, len(reqs))
	var order []string

	for _, req := range reqs {
		group, ok := byDiv[req.DivisionID]
		if !ok {
			group = &divisionGroup{
				id:   req.DivisionID,
				code: req.DivisionCode,
				name: req.DivisionName,
			}
			byDiv[req.DivisionID] = group
			order = append(order, req.DivisionID)
		}
		group.reqs = append(group.reqs, req)
		reqDiv[req.ID] = req.DivisionID
	}
	for _, rec := range recs {
		if rec.RequirementID == "" {
			continue
		}
		if divID, ok := reqDiv[rec.RequirementID]; ok {
			byDiv[divID].recs = append(byDiv[divID].recs, rec)
		}
	}

	groups := make([]*divisionGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, byDiv[id])
	}
	return groups
}

func (svc *service) evalDivision(group *divisionGroup) DivisionReport {
	prog := make(Map, len(group.reqs))
	for _, req := range group.reqs {
		prog[req.ID] = &Entry{}
	}

	for _, req := range group.reqs {
		evalPass1(req, group.recs, prog)
	}
	for _, req := range pass2Order(group.reqs) {
		evalPass2(req, group.reqs, group.recs, prog)
	}

	if rule, ok := svc.registry.Get(group.code); ok {
		snapshot := prog.Clone()
		if err := applyRule(rule, group.reqs, group.recs, prog); err != nil {
			err = errors.Wrapf(err, "division rule %s failed, keeping pre-rule values", group.code)
			svc.logger.Error(fmt.Sprintf("%v", err), err)
			prog = snapshot
		}
	}

	return buildReport(group, prog)
}

// applyRule shields the orchestrator from a misbehaving rule: a student
// must always receive a best-effort report.
func applyRule(rule Rule, reqs []requirement.Requirement, recs []record.Record, prog Map) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Apply(reqs, recs, prog)
}

func buildReport(group *divisionGroup, prog Map) DivisionReport {
	byID := make(map[string]requirement.Requirement, len(group.reqs))
	for _, req := range group.reqs {
		byID[req.ID] = req
	}

	report := DivisionReport{
		DivisionName: group.name,
		Requirements: make([]RequirementProgress, 0, len(group.reqs)),
	}

	var rsuRatios, cdaRatios []float64
	for _, req := range group.reqs {
		rule := req.Rule()
		if _, sourceOnly := rule.(requirement.SourceOnlyRule); sourceOnly {
			// feeds other requirements; never surfaced, never counted
			continue
		}
		entry := prog.Get(req.ID)

		rp := RequirementProgress{
			RequirementID: req.ID,
			Name:          req.Name,
			CDAName:       req.CDAName,
			MinimumRSU:    req.MinimumRSU,
			MinimumCDA:    req.MinimumCDA,
			CurrentRSU:    round2(entry.RSU),
			CurrentCDA:    round2(entry.CDA),
			PendingRSU:    round2(entry.PendingRSU),
			PendingCDA:    round2(entry.PendingCDA),
			RSUUnit:       req.RSUUnit,
			CDAUnit:       req.CDAUnit,
			IsExam:        req.IsExam,
			IsSelectable:  req.IsSelectable,
			CalcMethod:    calcMethod(rule),
			RSUCalcHint:   buildHint(AxisRSU, req, rule, entry, byID),
			CDACalcHint:   buildHint(AxisCDA, req, rule, entry, byID),
			RSURecords:    entry.RSURecords,
			CDARecords:    entry.CDARecords,
			SubCounts:     entry.SubCounts,
		}
		if rp.RSURecords == nil {
			rp.RSURecords = []RecordRef{}
		}
		if rp.CDARecords == nil {
			rp.CDARecords = []RecordRef{}
		}
		report.Requirements = append(report.Requirements, rp)

		if min := effectiveMinimum(req, AxisRSU); min > 0 {
			rsuRatios = append(rsuRatios, completionRatio(entry.RSU, min))
		}
		if min := effectiveMinimum(req, AxisCDA); min > 0 {
			cdaRatios = append(cdaRatios, completionRatio(entry.CDA, min))
		}
	}

	report.RSUCompletionPct = completionPct(rsuRatios)
	report.CDACompletionPct = completionPct(cdaRatios)
	return report
}

func completionRatio(current, min float64) float64 {
	if ratio := current / min; ratio < 1 {
		return ratio
	}
	return 1
}

func completionPct(ratios []float64) float64 {
	if len(ratios) == 0 {
		return 0
	}
	var sum float64
	for _, ratio := range ratios {
		sum += ratio
	}
	return round2(sum / float64(len(ratios)) * 100)
}
