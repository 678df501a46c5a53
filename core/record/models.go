package record

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tmdent/clinlog/core"
)

// Statuses
const (
	StatusPlanned             = "planned"
	StatusInProgress          = "in_progress"
	StatusCompleted           = "completed"
	StatusPendingVerification = "pending_verification"
	StatusVerified            = "verified"
	StatusRejected            = "rejected"
	StatusVoid                = "void"
)

var (
	AllStatuses = []string{
		StatusPlanned,
		StatusInProgress,
		StatusCompleted,
		StatusPendingVerification,
		StatusVerified,
		StatusRejected,
		StatusVoid,
	}

	// QualifyingStatuses are the statuses visible to progress aggregation:
	// verified work counts as confirmed, the rest as pending.
	QualifyingStatuses = []string{
		StatusVerified,
		StatusCompleted,
		StatusPendingVerification,
		StatusRejected,
	}

	// LogStatuses are the statuses a record may be created with.
	LogStatuses = []string{StatusPlanned, StatusInProgress, StatusCompleted}

	// ReviewStatuses are the verdicts an instructor may set.
	ReviewStatuses = []string{StatusVerified, StatusRejected}

	// statusTransitions defines the record workflow. A record may only move
	// along these edges; verified and void are terminal.
	statusTransitions = map[string][]string{
		StatusPlanned:             {StatusInProgress, StatusCompleted, StatusVoid},
		StatusInProgress:          {StatusCompleted, StatusVoid},
		StatusCompleted:           {StatusPendingVerification, StatusVoid},
		StatusPendingVerification: {StatusVerified, StatusRejected, StatusVoid},
		StatusRejected:            {StatusPendingVerification, StatusVoid},
		StatusVerified:            {},
		StatusVoid:                {},
	}
)

// IsConfirmed reports whether a status contributes to confirmed progress.
func IsConfirmed(status string) bool {
	return status == StatusVerified
}

// IsPending reports whether a status contributes to pending progress.
func IsPending(status string) bool {
	switch status {
	case StatusCompleted, StatusPendingVerification, StatusRejected:
		return true
	}
	return false
}

// Qualifies reports whether a status contributes to progress at all.
func Qualifies(status string) bool {
	return IsConfirmed(status) || IsPending(status)
}

// CanTransition reports whether the workflow allows moving from one status
// to another.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether a record in this status may still be edited by
// its student.
func Editable(status string) bool {
	switch status {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Flags are division-specific named boolean sub-flags carried by a record,
// e.g. the exam-toggle flags used by count_exam aggregation.
type Flags map[string]bool

// Record is one unit of logged clinical work.
//
// Patient and student fields other than the IDs are joined in for display;
// they are never written through this model.
type Record struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name,omitempty"`  // joined in
	StudentEmail  string    `json:"student_email,omitempty"` // joined in
	RequirementID string    `json:"requirement_id,omitempty"`
	PatientID     string    `json:"patient_id,omitempty"`
	PatientHN     string    `json:"patient_hn,omitempty"`   // joined in
	PatientName   string    `json:"patient_name,omitempty"` // joined in
	StepName      string    `json:"step_name,omitempty"`
	TreatmentName string    `json:"treatment_name,omitempty"`
	Status        string    `json:"status"`
	RSUUnits      float64   `json:"rsu_units"`
	CDAUnits      float64   `json:"cda_units"`
	IsExam        bool      `json:"is_exam"`
	Flags         Flags     `json:"flags,omitempty"`
	ReviewedBy    string    `json:"reviewed_by,omitempty"`
	ReviewNote    string    `json:"review_note,omitempty"`
	PerformedAt   time.Time `json:"performed_at"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// NewRecord contains information needed to log a new Record.
type NewRecord struct {
	RequirementID string    `json:"requirement_id" validate:"required"`
	PatientID     string    `json:"patient_id"`
	StepName      string    `json:"step_name"`
	TreatmentName string    `json:"treatment_name"`
	Status        string    `json:"status" validate:"omitempty,logstatus"`
	RSUUnits      float64   `json:"rsu_units" validate:"gte=0"`
	CDAUnits      float64   `json:"cda_units" validate:"gte=0"`
	IsExam        bool      `json:"is_exam"`
	Flags         Flags     `json:"flags"`
	PerformedAt   time.Time `json:"performed_at"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.StepName = core.CleanString(nr.StepName)
	nr.TreatmentName = core.CleanString(nr.TreatmentName)
	return validate.Struct(nr)
}

// UpdateRecord defines what information may be provided to modify an
// existing Record while it is still editable.
type UpdateRecord struct {
	PatientID     string    `json:"patient_id"`
	StepName      string    `json:"step_name"`
	TreatmentName string    `json:"treatment_name"`
	Status        string    `json:"status" validate:"omitempty,logstatus"`
	RSUUnits      *float64  `json:"rsu_units" validate:"omitempty,gte=0"`
	CDAUnits      *float64  `json:"cda_units" validate:"omitempty,gte=0"`
	Flags         Flags     `json:"flags"`
	PerformedAt   time.Time `json:"performed_at"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	ur.StepName = core.CleanString(ur.StepName)
	ur.TreatmentName = core.CleanString(ur.TreatmentName)
	return validate.Struct(ur)
}

// ReviewRecord is an instructor's verdict on a submitted Record.
type ReviewRecord struct {
	Status string `json:"status" validate:"required,reviewstatus"`
	Note   string `json:"note"`
}

func (rv *ReviewRecord) Validate(validate *validator.Validate) error {
	rv.Note = core.CleanString(rv.Note)
	return validate.Struct(rv)
}

type QueryFilter struct {
	StudentID     string    `query:"student_id"`
	RequirementID string    `query:"requirement_id"`
	DivisionCode  string    `query:"division"`
	Statuses      []string  `query:"status"`
	IsExam        *bool     `query:"is_exam"`
	PerformedFrom time.Time `query:"performed_from"`
	PerformedTo   time.Time `query:"performed_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.RequirementID == "" && qf.DivisionCode == "" &&
		qf.Statuses == nil && qf.IsExam == nil && qf.PerformedFrom.IsZero() && qf.PerformedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.DivisionCode = core.CleanString(qf.DivisionCode, true /* lower */)
}

// GetFilter filters a single Record lookup.
type GetFilter struct {
	ID string
}
