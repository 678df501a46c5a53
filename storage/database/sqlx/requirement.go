package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/types"
	"github.com/volatiletech/strmangle"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/requirement"
)

const divisionColumns = `id, code, name, created_at, updated_at`

// requirementColumns must stay in sync with requirementRow.fields().
// Requirements are always read joined with their division so results carry
// the division code and name.
const (
	requirementColumns = `r.id, r.division_id, d.code AS division_code, d.name AS division_name,
		r.name, r.cda_name, r.minimum_rsu, r.minimum_cda, r.rsu_unit, r.cda_unit, r.is_exam,
		r.is_selectable, r.default_rsu, r.default_cda, r.agg_config, r.created_at, r.updated_at`
	requirementSource = ` FROM requirement r JOIN division d ON d.id = r.division_id`
)

type divisionRow struct {
	ID        string    `db:"id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *divisionRow) fields() []interface{} {
	return []interface{}{&r.ID, &r.Code, &r.Name, &r.CreatedAt, &r.UpdatedAt}
}

type requirementRow struct {
	ID           string    `db:"id"`
	DivisionID   string    `db:"division_id"`
	DivisionCode string    `db:"division_code"`
	DivisionName string    `db:"division_name"`
	Name         string    `db:"name"`
	CDAName      string    `db:"cda_name"`
	MinimumRSU   float64   `db:"minimum_rsu"`
	MinimumCDA   float64   `db:"minimum_cda"`
	RSUUnit      string    `db:"rsu_unit"`
	CDAUnit      string    `db:"cda_unit"`
	IsExam       bool      `db:"is_exam"`
	IsSelectable bool      `db:"is_selectable"`
	DefaultRSU   float64   `db:"default_rsu"`
	DefaultCDA   float64   `db:"default_cda"`
	AggConfig    null.JSON `db:"agg_config"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *requirementRow) fields() []interface{} {
	return []interface{}{
		&r.ID, &r.DivisionID, &r.DivisionCode, &r.DivisionName, &r.Name, &r.CDAName,
		&r.MinimumRSU, &r.MinimumCDA, &r.RSUUnit, &r.CDAUnit, &r.IsExam, &r.IsSelectable,
		&r.DefaultRSU, &r.DefaultCDA, &r.AggConfig, &r.CreatedAt, &r.UpdatedAt,
	}
}

type requirementRepository struct {
	exec core.DBExecutor
}

var _ requirement.Repository = (*requirementRepository)(nil) // interface compliance check

func NewRequirementRepository(exec core.DBExecutor) *requirementRepository {
	return &requirementRepository{exec: exec}
}

func (repo requirementRepository) unrowDivision(r divisionRow) requirement.Division {
	return requirement.Division{
		ID:        r.ID,
		Code:      r.Code,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (repo requirementRepository) row(req requirement.Requirement) requirementRow {
	r := requirementRow{
		ID:           req.ID,
		DivisionID:   req.DivisionID,
		Name:         req.Name,
		CDAName:      req.CDAName,
		MinimumRSU:   req.MinimumRSU,
		MinimumCDA:   req.MinimumCDA,
		RSUUnit:      req.RSUUnit,
		CDAUnit:      req.CDAUnit,
		IsExam:       req.IsExam,
		IsSelectable: req.IsSelectable,
		DefaultRSU:   req.DefaultRSU,
		DefaultCDA:   req.DefaultCDA,
		CreatedAt:    req.CreatedAt.UTC(),
		UpdatedAt:    req.UpdatedAt.UTC(),
	}
	if len(req.AggConfig) > 0 {
		r.AggConfig = null.JSONFrom(req.AggConfig)
	}
	return r
}

func (repo requirementRepository) unrow(r requirementRow) requirement.Requirement {
	return requirement.Requirement{
		ID:           r.ID,
		DivisionID:   r.DivisionID,
		DivisionCode: r.DivisionCode,
		DivisionName: r.DivisionName,
		Name:         r.Name,
		CDAName:      r.CDAName,
		MinimumRSU:   r.MinimumRSU,
		MinimumCDA:   r.MinimumCDA,
		RSUUnit:      r.RSUUnit,
		CDAUnit:      r.CDAUnit,
		IsExam:       r.IsExam,
		IsSelectable: r.IsSelectable,
		DefaultRSU:   r.DefaultRSU,
		DefaultCDA:   r.DefaultCDA,
		AggConfig:    types.JSON(r.AggConfig.JSON),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (repo requirementRepository) QueryDivisions(ctx context.Context, exec ...core.DBExecutor) ([]requirement.Division, error) {
	rows, err := repo.getExec(exec).QueryContext(ctx, `SELECT `+divisionColumns+` FROM division ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying divisions")
	}
	defer rows.Close()

	var rws []divisionRow
	if err = sqlx.StructScan(rows, &rws); err != nil {
		return nil, errors.Wrap(err, "scanning divisions")
	}
	divs := make([]requirement.Division, len(rws))
	for i, r := range rws {
		divs[i] = repo.unrowDivision(r)
	}
	return divs, nil
}

func (repo requirementRepository) GetDivision(ctx context.Context, filter requirement.GetDivisionFilter, exec ...core.DBExecutor) (requirement.Division, error) {
	var (
		where string
		arg   interface{}
	)
	switch {
	case filter.ID != "":
		if !validUUID(filter.ID) {
			return requirement.Division{}, requirement.ErrDivisionNotFound
		}
		where, arg = `id = $1`, filter.ID
	case filter.Code != "":
		where, arg = `LOWER(code) = LOWER($1)`, filter.Code
	default:
		return requirement.Division{}, requirement.ErrDivisionNotFound
	}

	var r divisionRow
	err := repo.getExec(exec).QueryRowContext(ctx, `SELECT `+divisionColumns+` FROM division WHERE `+where, arg).
		Scan(r.fields()...)
	if err != nil {
		return requirement.Division{}, trapNoRowsErr(err, requirement.ErrDivisionNotFound, "getting division")
	}
	return repo.unrowDivision(r), nil
}

func (repo requirementRepository) CreateRequirement(ctx context.Context, req requirement.Requirement, exec ...core.DBExecutor) (requirement.Requirement, error) {
	req.ID = uuid.New().String()
	r := repo.row(req)
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO requirement (id, division_id, name, cda_name, minimum_rsu, minimum_cda, rsu_unit,
		                         cda_unit, is_exam, is_selectable, default_rsu, default_cda, agg_config,
		                         created_at, updated_at)
		VALUES (`+strmangle.Placeholders(true, 15, 1, 1)+`)`,
		r.ID, r.DivisionID, r.Name, r.CDAName, r.MinimumRSU, r.MinimumCDA, r.RSUUnit,
		r.CDAUnit, r.IsExam, r.IsSelectable, r.DefaultRSU, r.DefaultCDA, r.AggConfig,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if constraintViolated(err, pqUniqueViolation) {
			return requirement.Requirement{}, requirement.ErrRequirementExists
		}
		return requirement.Requirement{}, errors.Wrap(err, "inserting requirement")
	}
	// read back through the division join so the result carries display fields
	return repo.GetRequirement(ctx, requirement.GetFilter{ID: req.ID}, exec...)
}

func (repo requirementRepository) QueryRequirements(ctx context.Context, filter *requirement.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]requirement.Requirement, error) {
	query := `SELECT ` + requirementColumns + requirementSource
	var where []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			where = append(where, `(r.name ILIKE ? OR r.cda_name ILIKE ?)`)
			args = append(args, pat, pat)
		}
		if filter.DivisionID != "" {
			if !validUUID(filter.DivisionID) {
				return []requirement.Requirement{}, nil
			}
			where = append(where, `r.division_id = ?`)
			args = append(args, filter.DivisionID)
		}
		if filter.DivisionCode != "" {
			where = append(where, `LOWER(d.code) = LOWER(?)`)
			args = append(args, filter.DivisionCode)
		}
		if filter.IsSelectable != nil {
			where = append(where, `r.is_selectable = ?`)
			args = append(args, *filter.IsSelectable)
		}
		if filter.IsExam != nil {
			where = append(where, `r.is_exam = ?`)
			args = append(args, *filter.IsExam)
		}
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += orderBy(ordering, `division_name ASC, name ASC`)

	rows, err := repo.getExec(exec).QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying requirements")
	}
	defer rows.Close()

	var rws []requirementRow
	if err = sqlx.StructScan(rows, &rws); err != nil {
		return nil, errors.Wrap(err, "scanning requirements")
	}
	reqs := make([]requirement.Requirement, len(rws))
	for i, r := range rws {
		reqs[i] = repo.unrow(r)
	}
	return reqs, nil
}

func (repo requirementRepository) GetRequirement(ctx context.Context, filter requirement.GetFilter, exec ...core.DBExecutor) (requirement.Requirement, error) {
	var (
		where string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if !validUUID(filter.ID) {
			return requirement.Requirement{}, requirement.ErrNotFound
		}
		where, args = `r.id = $1`, []interface{}{filter.ID}
	case filter.Name != "" && filter.DivisionID != "":
		if !validUUID(filter.DivisionID) {
			return requirement.Requirement{}, requirement.ErrNotFound
		}
		where, args = `r.name = $1 AND r.division_id = $2`, []interface{}{filter.Name, filter.DivisionID}
	default:
		return requirement.Requirement{}, requirement.ErrNotFound
	}

	var r requirementRow
	err := repo.getExec(exec).QueryRowContext(ctx, `SELECT `+requirementColumns+requirementSource+` WHERE `+where, args...).
		Scan(r.fields()...)
	if err != nil {
		return requirement.Requirement{}, trapNoRowsErr(err, requirement.ErrNotFound, "getting requirement")
	}
	return repo.unrow(r), nil
}

func (repo requirementRepository) UpdateRequirement(ctx context.Context, req requirement.Requirement, exec ...core.DBExecutor) (requirement.Requirement, error) {
	r := repo.row(req)
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE requirement
		SET division_id = $1, name = $2, cda_name = $3, minimum_rsu = $4, minimum_cda = $5,
		    rsu_unit = $6, cda_unit = $7, is_exam = $8, is_selectable = $9, default_rsu = $10,
		    default_cda = $11, agg_config = $12, updated_at = $13
		WHERE id = $14`,
		r.DivisionID, r.Name, r.CDAName, r.MinimumRSU, r.MinimumCDA,
		r.RSUUnit, r.CDAUnit, r.IsExam, r.IsSelectable, r.DefaultRSU,
		r.DefaultCDA, r.AggConfig, r.UpdatedAt, r.ID,
	)
	if err != nil {
		if constraintViolated(err, pqUniqueViolation) {
			return requirement.Requirement{}, requirement.ErrRequirementExists
		}
		return requirement.Requirement{}, errors.Wrap(err, "updating requirement")
	}
	if n, err := res.RowsAffected(); err != nil {
		return requirement.Requirement{}, errors.Wrap(err, "updating requirement")
	} else if n == 0 {
		return requirement.Requirement{}, requirement.ErrNotFound
	}
	return repo.GetRequirement(ctx, requirement.GetFilter{ID: req.ID}, exec...)
}

func (repo requirementRepository) DeleteRequirementsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM requirement WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "expanding requirement ids")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		if constraintViolated(err, pqForeignKeyViolation) {
			return 0, requirement.ErrRequirementInUse
		}
		return 0, errors.Wrap(err, "deleting requirements")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting requirements")
	}
	return int(cnt), nil
}

func (repo requirementRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return getExec(repo.exec, svcExec)
}
