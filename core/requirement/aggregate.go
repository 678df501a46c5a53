package requirement

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/types"
)

// Aggregation strategy tags.
const (
	AggSum        = "sum"
	AggCount      = "count"
	AggCountUnion = "count_union"
	AggSumUnion   = "sum_union"
	AggCountExam  = "count_exam"
	AggDerived    = "derived"
	AggCountMet   = "count_met"
	AggSourceOnly = "source_only"
)

// Reduction operators for the derived strategy.
const (
	OpSumBoth = "sum_both"
	OpSumRSU  = "sum_rsu"
	OpSumCDA  = "sum_cda"
	OpRecount = "recount"
)

var errUnknownAggType = errors.New("unknown aggregation type")

// AggRule is the aggregation strategy stored on a Requirement. It is a
// closed set: every implementation lives in this package so strategy
// dispatch can switch exhaustively over the concrete types.
type AggRule interface {
	Tag() string
	aggRule()
}

type (
	// SumRule sums a record's unit fields per axis. The default strategy.
	SumRule struct{}

	// CountRule counts each qualifying record as 1 on both axes.
	CountRule struct{}

	// CountUnionRule counts like CountRule over the union of the owning
	// requirement's records and those of the listed source requirements.
	CountUnionRule struct {
		Sources []string
	}

	// SumUnionRule sums like SumRule over the same union.
	SumUnionRule struct {
		Sources []string
	}

	// CountExamRule counts exam-flagged records as 1 on both axes. An empty
	// Sources list admits every exam record in the division; Flag, when set,
	// additionally requires the record to carry that named sub-flag.
	CountExamRule struct {
		Sources []string
		Flag    string
	}

	// DerivedRule reduces the already-computed progress of the listed source
	// requirements. Evaluated in pass 2.
	DerivedRule struct {
		Sources []string
		Op      string
	}

	// CountMetRule counts how many source requirements individually meet
	// their own per-axis minimum. Evaluated in pass 2; pending is always 0.
	CountMetRule struct {
		Sources []string
	}

	// SourceOnlyRule accumulates like SumRule but the requirement is never
	// surfaced at the top level; it exists to feed unions and derivations.
	SourceOnlyRule struct{}
)

func (SumRule) Tag() string        { return AggSum }
func (CountRule) Tag() string      { return AggCount }
func (CountUnionRule) Tag() string { return AggCountUnion }
func (SumUnionRule) Tag() string   { return AggSumUnion }
func (CountExamRule) Tag() string  { return AggCountExam }
func (DerivedRule) Tag() string    { return AggDerived }
func (CountMetRule) Tag() string   { return AggCountMet }
func (SourceOnlyRule) Tag() string { return AggSourceOnly }

func (SumRule) aggRule()        {}
func (CountRule) aggRule()      {}
func (CountUnionRule) aggRule() {}
func (SumUnionRule) aggRule()   {}
func (CountExamRule) aggRule()  {}
func (DerivedRule) aggRule()    {}
func (CountMetRule) aggRule()   {}
func (SourceOnlyRule) aggRule() {}

type aggConfigJSON struct {
	Type    string   `json:"type"`
	Sources []string `json:"sources,omitempty"`
	Op      string   `json:"op,omitempty"`
	Flag    string   `json:"flag,omitempty"`
}

// ParseAggRule decodes a stored aggregation configuration. A nil rule with
// a nil error means no configuration is stored. A JSON null counts as no
// configuration; clients serializing the full form send it for the zero value.
func ParseAggRule(raw types.JSON) (AggRule, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var cfg aggConfigJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "decoding aggregation config")
	}

	switch cfg.Type {
	case AggSum:
		return SumRule{}, nil
	case AggCount:
		return CountRule{}, nil
	case AggCountUnion:
		return CountUnionRule{Sources: cfg.Sources}, nil
	case AggSumUnion:
		return SumUnionRule{Sources: cfg.Sources}, nil
	case AggCountExam:
		return CountExamRule{Sources: cfg.Sources, Flag: cfg.Flag}, nil
	case AggDerived:
		op := cfg.Op
		switch op {
		case "":
			op = OpSumBoth
		case OpSumBoth, OpSumRSU, OpSumCDA, OpRecount:
		default:
			return nil, errors.Errorf("unknown derived operator %q", cfg.Op)
		}
		return DerivedRule{Sources: cfg.Sources, Op: op}, nil
	case AggCountMet:
		return CountMetRule{Sources: cfg.Sources}, nil
	case AggSourceOnly:
		return SourceOnlyRule{}, nil
	}
	return nil, errors.Wrapf(errUnknownAggType, "%q", cfg.Type)
}

// Rule resolves the effective aggregation strategy for the requirement.
// A stored configuration wins when it parses; otherwise exam requirements
// count exam records and everything else sums record units. Malformed
// configurations degrade to the same fallbacks, never error.
func (r Requirement) Rule() AggRule {
	if rule, err := ParseAggRule(r.AggConfig); err == nil && rule != nil {
		return rule
	}
	if r.IsExam {
		return CountExamRule{}
	}
	return SumRule{}
}
