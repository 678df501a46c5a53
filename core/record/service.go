package record

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/requirement"
)

var (
	// errors
	ErrNotFound          = errors.New("record not found")
	ErrNotEditable       = errors.New("record can no longer be edited")
	ErrInvalidTransition = errors.New("status change not allowed")
)

type (
	Repository interface {
		CreateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		// QueryRecords applies AND operation on available QueryFilter fields;
		// results are joined with patient and student display fields.
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Record, error)
		GetRecord(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Record, error)
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		DeleteRecordsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		Log(studentID string, nr NewRecord) (Record, error)
		Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
		GetByID(id string) (Record, error)
		Update(id string, ur UpdateRecord) (Record, error)
		Submit(id string) (Record, error)
		Review(id, reviewerID string, rv ReviewRecord) (Record, error)
		Void(id string) (Record, error)
	}

	service struct {
		repo    Repository
		reqRepo requirement.Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, reqRepo requirement.Repository, mailSvc core.EmailService, conf *core.Config) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(reqRepo, "reqRepo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:    repo,
		reqRepo: reqRepo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) Log(studentID string, nr NewRecord) (Record, error) {
	ctx := context.Background()

	req, err := svc.reqRepo.GetRequirement(ctx, requirement.GetFilter{ID: nr.RequirementID})
	if err != nil {
		if errors.Cause(err) == requirement.ErrNotFound {
			return Record{}, core.NewValidationError(err, core.FieldError{Field: "requirement_id", Error: err.Error()})
		}
		return Record{}, err
	}
	if !req.IsSelectable {
		return Record{}, core.NewValidationError(nil,
			core.FieldError{Field: "requirement_id", Error: "this requirement cannot be logged against directly"})
	}

	now := time.Now().UTC()
	rec := Record{
		StudentID:     studentID,
		RequirementID: req.ID,
		PatientID:     nr.PatientID,
		StepName:      nr.StepName,
		TreatmentName: nr.TreatmentName,
		Status:        nr.Status,
		RSUUnits:      nr.RSUUnits,
		CDAUnits:      nr.CDAUnits,
		IsExam:        nr.IsExam || req.IsExam,
		Flags:         nr.Flags,
		PerformedAt:   nr.PerformedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if rec.Status == "" {
		rec.Status = StatusPlanned
	}
	if rec.RSUUnits == 0 {
		rec.RSUUnits = req.DefaultRSU
	}
	if rec.CDAUnits == 0 {
		rec.CDAUnits = req.DefaultCDA
	}
	if rec.PerformedAt.IsZero() {
		rec.PerformedAt = now
	}
	return svc.repo.CreateRecord(ctx, rec)
}

func (svc *service) Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error) {
	return svc.repo.QueryRecords(context.Background(), filter, ordering)
}

func (svc *service) GetByID(id string) (Record, error) {
	return svc.repo.GetRecord(context.Background(), GetFilter{ID: id})
}

func (svc *service) Update(id string, ur UpdateRecord) (Record, error) {
	ctx := context.Background()

	rec, err := svc.repo.GetRecord(ctx, GetFilter{ID: id})
	if err != nil {
		return Record{}, err
	}
	if !Editable(rec.Status) {
		return Record{}, ErrNotEditable
	}
	if ur.Status != "" && ur.Status != rec.Status {
		if !CanTransition(rec.Status, ur.Status) {
			return Record{}, ErrInvalidTransition
		}
		rec.Status = ur.Status
	}

	if ur.PatientID != "" {
		rec.PatientID = ur.PatientID
	}
	if ur.StepName != "" {
		rec.StepName = ur.StepName
	}
	if ur.TreatmentName != "" {
		rec.TreatmentName = ur.TreatmentName
	}
	if ur.RSUUnits != nil {
		rec.RSUUnits = *ur.RSUUnits
	}
	if ur.CDAUnits != nil {
		rec.CDAUnits = *ur.CDAUnits
	}
	if ur.Flags != nil {
		rec.Flags = ur.Flags
	}
	if !ur.PerformedAt.IsZero() {
		rec.PerformedAt = ur.PerformedAt
	}
	rec.UpdatedAt = time.Now().UTC()

	return svc.repo.UpdateRecord(ctx, rec)
}

// Submit sends a completed record for instructor verification.
func (svc *service) Submit(id string) (Record, error) {
	return svc.transition(id, StatusPendingVerification)
}

// Review records an instructor's verdict and notifies the student.
func (svc *service) Review(id, reviewerID string, rv ReviewRecord) (Record, error) {
	ctx := context.Background()

	rec, err := svc.repo.GetRecord(ctx, GetFilter{ID: id})
	if err != nil {
		return Record{}, err
	}
	if !CanTransition(rec.Status, rv.Status) {
		return Record{}, ErrInvalidTransition
	}

	rec.Status = rv.Status
	rec.ReviewedBy = reviewerID
	rec.ReviewNote = rv.Note
	rec.UpdatedAt = time.Now().UTC()

	rec, err = svc.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	svc.sendReviewedEmail(rec)
	return rec, nil
}

// Void removes a record from the workflow; void records never contribute
// to progress.
func (svc *service) Void(id string) (Record, error) {
	return svc.transition(id, StatusVoid)
}

func (svc *service) transition(id, status string) (Record, error) {
	ctx := context.Background()

	rec, err := svc.repo.GetRecord(ctx, GetFilter{ID: id})
	if err != nil {
		return Record{}, err
	}
	if !CanTransition(rec.Status, status) {
		return Record{}, ErrInvalidTransition
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateRecord(ctx, rec)
}

func (svc *service) sendReviewedEmail(rec Record) {
	if rec.StudentEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: rec.StudentName, Address: rec.StudentEmail}},
		Subject:      fmt.Sprintf("Clinical Record Reviewed - %s", svc.conf.AppName),
		TemplateName: "record-reviewed",
		TemplateData: struct{ Record Record }{rec},
	})
}
