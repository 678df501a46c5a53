package requirement

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/tmdent/clinlog/core"
)

// Division is a clinical specialty scoping a set of requirements and records.
type Division struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"` // e.g. "ENDO"
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Requirement is one graduation criterion within a Division.
//
// The two minimums are independent: either may be zero, meaning that axis
// is not tracked for this requirement. CDAName is only set when the CDA-side
// accounting uses a different label than the RSU side.
type Requirement struct {
	ID           string     `json:"id"`
	DivisionID   string     `json:"division_id"`
	DivisionCode string     `json:"division_code,omitempty"` // joined in
	DivisionName string     `json:"division_name,omitempty"` // joined in
	Name         string     `json:"name"`
	CDAName      string     `json:"cda_name,omitempty"`
	MinimumRSU   float64    `json:"minimum_rsu"`
	MinimumCDA   float64    `json:"minimum_cda"`
	RSUUnit      string     `json:"rsu_unit,omitempty"`
	CDAUnit      string     `json:"cda_unit,omitempty"`
	IsExam       bool       `json:"is_exam"`
	IsSelectable bool       `json:"is_selectable"`
	DefaultRSU   float64    `json:"default_rsu,omitempty"`
	DefaultCDA   float64    `json:"default_cda,omitempty"`
	AggConfig    types.JSON `json:"agg_config,omitempty"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
}

// NewRequirement contains information needed to create a new Requirement.
type NewRequirement struct {
	DivisionID   string     `json:"division_id" validate:"required"`
	Name         string     `json:"name" validate:"required"`
	CDAName      string     `json:"cda_name"`
	MinimumRSU   float64    `json:"minimum_rsu" validate:"gte=0"`
	MinimumCDA   float64    `json:"minimum_cda" validate:"gte=0"`
	RSUUnit      string     `json:"rsu_unit"`
	CDAUnit      string     `json:"cda_unit"`
	IsExam       bool       `json:"is_exam"`
	IsSelectable *bool      `json:"is_selectable"`
	DefaultRSU   float64    `json:"default_rsu" validate:"gte=0"`
	DefaultCDA   float64    `json:"default_cda" validate:"gte=0"`
	AggConfig    types.JSON `json:"agg_config"`
}

func (nr *NewRequirement) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.CDAName = core.CleanString(nr.CDAName)
	nr.AggConfig = cleanAggConfig(nr.AggConfig)

	if err := validate.Struct(nr); err != nil {
		return err
	}
	return validateAggConfig(nr.AggConfig)
}

// UpdateRequirement defines what information may be provided to modify an
// existing Requirement. Pointer fields distinguish "not provided" from an
// explicit zero.
type UpdateRequirement struct {
	Name         string     `json:"name"`
	CDAName      string     `json:"cda_name"`
	MinimumRSU   *float64   `json:"minimum_rsu" validate:"omitempty,gte=0"`
	MinimumCDA   *float64   `json:"minimum_cda" validate:"omitempty,gte=0"`
	RSUUnit      string     `json:"rsu_unit"`
	CDAUnit      string     `json:"cda_unit"`
	IsExam       *bool      `json:"is_exam"`
	IsSelectable *bool      `json:"is_selectable"`
	DefaultRSU   *float64   `json:"default_rsu" validate:"omitempty,gte=0"`
	DefaultCDA   *float64   `json:"default_cda" validate:"omitempty,gte=0"`
	AggConfig    types.JSON `json:"agg_config"`
}

func (ur *UpdateRequirement) Validate(origReq Requirement, validate *validator.Validate) error {
	name := core.CleanString(ur.Name)
	if name != "" {
		ur.Name = name
	} else {
		ur.Name = origReq.Name
	}
	ur.CDAName = core.CleanString(ur.CDAName)
	ur.AggConfig = cleanAggConfig(ur.AggConfig)

	if err := validate.Struct(ur); err != nil {
		return err
	}
	return validateAggConfig(ur.AggConfig)
}

// cleanAggConfig drops a JSON null; types.JSON keeps the literal bytes and
// they would otherwise read as a stored config.
func cleanAggConfig(raw types.JSON) types.JSON {
	if string(raw) == "null" {
		return nil
	}
	return raw
}

// validateAggConfig rejects configs that would not survive a round trip
// through ParseAggRule. The engine itself tolerates malformed configs by
// degrading to the default strategy; admin input should not rely on that.
func validateAggConfig(raw types.JSON) error {
	if len(raw) == 0 {
		return nil
	}
	if _, err := ParseAggRule(raw); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "agg_config", Error: "invalid aggregation config"})
	}
	return nil
}

type QueryFilter struct {
	Search       string `query:"search"`
	DivisionID   string `query:"division_id"`
	DivisionCode string `query:"division"`
	IsSelectable *bool  `query:"is_selectable"`
	IsExam       *bool  `query:"is_exam"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.DivisionID == "" && qf.DivisionCode == "" && qf.IsSelectable == nil && qf.IsExam == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.DivisionCode = core.CleanString(qf.DivisionCode, true /* lower */)
}

// GetFilter filters a single Requirement lookup. Fields are tried in order:
// ID; Name scoped to DivisionID.
type GetFilter struct {
	ID         string
	Name       string
	DivisionID string
}

// GetDivisionFilter filters a single Division lookup.
type GetDivisionFilter struct {
	ID   string
	Code string
}
