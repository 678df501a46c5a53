package requirement

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/tmdent/clinlog/core"
)

var (
	// errors
	ErrNotFound          = errors.New("requirement not found")
	ErrDivisionNotFound  = errors.New("division not found")
	ErrRequirementExists = errors.New("a requirement with this name already exists in this division")
	ErrRequirementInUse  = errors.New("requirement has records attached")
)

type (
	Repository interface {
		QueryDivisions(ctx context.Context, exec ...core.DBExecutor) ([]Division, error)
		GetDivision(ctx context.Context, filter GetDivisionFilter, exec ...core.DBExecutor) (Division, error)

		CreateRequirement(ctx context.Context, req Requirement, exec ...core.DBExecutor) (Requirement, error)
		// QueryRequirements applies AND operation on available QueryFilter
		// fields; results are joined with their division's code and name.
		QueryRequirements(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Requirement, error)
		GetRequirement(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Requirement, error)
		UpdateRequirement(ctx context.Context, req Requirement, exec ...core.DBExecutor) (Requirement, error)
		DeleteRequirementsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		QueryDivisions() ([]Division, error)
		GetDivisionByCode(code string) (Division, error)
		Create(nr NewRequirement) (Requirement, error)
		Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Requirement, error)
		GetByID(id string) (Requirement, error)
		Update(id string, ur UpdateRequirement) (Requirement, error)
		Delete(ids ...string) error
	}

	service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo}
}

func (svc *service) QueryDivisions() ([]Division, error) {
	return svc.repo.QueryDivisions(context.Background())
}

func (svc *service) GetDivisionByCode(code string) (Division, error) {
	code = core.CleanString(code, true /* lower */)
	return svc.repo.GetDivision(context.Background(), GetDivisionFilter{Code: code})
}

func (svc *service) Create(nr NewRequirement) (Requirement, error) {
	ctx := context.Background()

	div, err := svc.repo.GetDivision(ctx, GetDivisionFilter{ID: nr.DivisionID})
	if err != nil {
		if errors.Cause(err) == ErrDivisionNotFound {
			return Requirement{}, core.NewValidationError(err, core.FieldError{Field: "division_id", Error: err.Error()})
		}
		return Requirement{}, err
	}

	if err = svc.checkNameUniqueness(ctx, nr.Name, div.ID, ""); err != nil {
		return Requirement{}, err
	}

	now := time.Now().UTC()
	req := Requirement{
		DivisionID:   div.ID,
		Name:         nr.Name,
		CDAName:      nr.CDAName,
		MinimumRSU:   nr.MinimumRSU,
		MinimumCDA:   nr.MinimumCDA,
		RSUUnit:      nr.RSUUnit,
		CDAUnit:      nr.CDAUnit,
		IsExam:       nr.IsExam,
		IsSelectable: true,
		DefaultRSU:   nr.DefaultRSU,
		DefaultCDA:   nr.DefaultCDA,
		AggConfig:    nr.AggConfig,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if nr.IsSelectable != nil {
		req.IsSelectable = *nr.IsSelectable
	}
	return svc.repo.CreateRequirement(ctx, req)
}

func (svc *service) Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Requirement, error) {
	return svc.repo.QueryRequirements(context.Background(), filter, ordering)
}

func (svc *service) GetByID(id string) (Requirement, error) {
	return svc.repo.GetRequirement(context.Background(), GetFilter{ID: id})
}

func (svc *service) Update(id string, ur UpdateRequirement) (Requirement, error) {
	ctx := context.Background()

	req, err := svc.repo.GetRequirement(ctx, GetFilter{ID: id})
	if err != nil {
		return Requirement{}, err
	}

	if ur.Name != req.Name {
		if err = svc.checkNameUniqueness(ctx, ur.Name, req.DivisionID, req.ID); err != nil {
			return Requirement{}, err
		}
	}

	req.Name = ur.Name
	if ur.CDAName != "" {
		req.CDAName = ur.CDAName
	}
	if ur.MinimumRSU != nil {
		req.MinimumRSU = *ur.MinimumRSU
	}
	if ur.MinimumCDA != nil {
		req.MinimumCDA = *ur.MinimumCDA
	}
	if ur.RSUUnit != "" {
		req.RSUUnit = ur.RSUUnit
	}
	if ur.CDAUnit != "" {
		req.CDAUnit = ur.CDAUnit
	}
	if ur.IsExam != nil {
		req.IsExam = *ur.IsExam
	}
	if ur.IsSelectable != nil {
		req.IsSelectable = *ur.IsSelectable
	}
	if ur.DefaultRSU != nil {
		req.DefaultRSU = *ur.DefaultRSU
	}
	if ur.DefaultCDA != nil {
		req.DefaultCDA = *ur.DefaultCDA
	}
	if len(ur.AggConfig) > 0 {
		req.AggConfig = ur.AggConfig
	}
	req.UpdatedAt = time.Now().UTC()

	return svc.repo.UpdateRequirement(ctx, req)
}

func (svc *service) Delete(ids ...string) error {
	_, err := svc.repo.DeleteRequirementsByID(context.Background(), ids)
	return err
}

// checkNameUniqueness enforces one requirement name per division. excludedID
// skips the requirement being updated.
func (svc *service) checkNameUniqueness(ctx context.Context, name, divisionID, excludedID string) error {
	existing, err := svc.repo.GetRequirement(ctx, GetFilter{Name: name, DivisionID: divisionID})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return err
	}
	if existing.ID == excludedID {
		return nil
	}
	return core.NewValidationError(ErrRequirementExists, core.FieldError{Field: "name", Error: ErrRequirementExists.Error()})
}
