package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/record"
)

// recordColumns must stay in sync with recordRow.fields(). Records are always
// read joined with the student and, when set, the patient; the requirement and
// division joins serve the division filter.
const (
	recordColumns = `cr.id, cr.student_id, u.name AS student_name, u.email AS student_email,
		cr.requirement_id, cr.patient_id, p.hn AS patient_hn, p.name AS patient_name,
		cr.step_name, cr.treatment_name, cr.status, cr.rsu_units, cr.cda_units, cr.is_exam,
		cr.flags, cr.reviewed_by, cr.review_note, cr.performed_at, cr.created_at, cr.updated_at`
	recordSource = ` FROM clinical_record cr
		JOIN app_user u ON u.id = cr.student_id
		JOIN requirement r ON r.id = cr.requirement_id
		JOIN division d ON d.id = r.division_id
		LEFT JOIN patient p ON p.id = cr.patient_id`
)

type recordRow struct {
	ID            string      `db:"id"`
	StudentID     string      `db:"student_id"`
	StudentName   string      `db:"student_name"`
	StudentEmail  null.String `db:"student_email"`
	RequirementID string      `db:"requirement_id"`
	PatientID     null.String `db:"patient_id"`
	PatientHN     null.String `db:"patient_hn"`
	PatientName   null.String `db:"patient_name"`
	StepName      string      `db:"step_name"`
	TreatmentName string      `db:"treatment_name"`
	Status        string      `db:"status"`
	RSUUnits      float64     `db:"rsu_units"`
	CDAUnits      float64     `db:"cda_units"`
	IsExam        bool        `db:"is_exam"`
	Flags         null.JSON   `db:"flags"`
	ReviewedBy    null.String `db:"reviewed_by"`
	ReviewNote    string      `db:"review_note"`
	PerformedAt   time.Time   `db:"performed_at"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (r *recordRow) fields() []interface{} {
	return []interface{}{
		&r.ID, &r.StudentID, &r.StudentName, &r.StudentEmail, &r.RequirementID, &r.PatientID,
		&r.PatientHN, &r.PatientName, &r.StepName, &r.TreatmentName, &r.Status, &r.RSUUnits,
		&r.CDAUnits, &r.IsExam, &r.Flags, &r.ReviewedBy, &r.ReviewNote, &r.PerformedAt,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

type recordRepository struct {
	exec core.DBExecutor
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(exec core.DBExecutor) *recordRepository {
	return &recordRepository{exec: exec}
}

func (repo recordRepository) row(rec record.Record) recordRow {
	r := recordRow{
		ID:            rec.ID,
		StudentID:     rec.StudentID,
		RequirementID: rec.RequirementID,
		PatientID:     null.NewString(rec.PatientID, rec.PatientID != ""),
		StepName:      rec.StepName,
		TreatmentName: rec.TreatmentName,
		Status:        rec.Status,
		RSUUnits:      rec.RSUUnits,
		CDAUnits:      rec.CDAUnits,
		IsExam:        rec.IsExam,
		ReviewedBy:    null.NewString(rec.ReviewedBy, rec.ReviewedBy != ""),
		ReviewNote:    rec.ReviewNote,
		PerformedAt:   rec.PerformedAt.UTC(),
		CreatedAt:     rec.CreatedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
	if len(rec.Flags) > 0 {
		b, _ := json.Marshal(rec.Flags) // a map[string]bool cannot fail
		r.Flags = null.JSONFrom(b)
	}
	return r
}

func (repo recordRepository) unrow(r recordRow) record.Record {
	rec := record.Record{
		ID:            r.ID,
		StudentID:     r.StudentID,
		StudentName:   r.StudentName,
		StudentEmail:  r.StudentEmail.String,
		RequirementID: r.RequirementID,
		PatientID:     r.PatientID.String,
		PatientHN:     r.PatientHN.String,
		PatientName:   r.PatientName.String,
		StepName:      r.StepName,
		TreatmentName: r.TreatmentName,
		Status:        r.Status,
		RSUUnits:      r.RSUUnits,
		CDAUnits:      r.CDAUnits,
		IsExam:        r.IsExam,
		ReviewedBy:    r.ReviewedBy.String,
		ReviewNote:    r.ReviewNote,
		PerformedAt:   r.PerformedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Flags.Valid {
		_ = r.Flags.Unmarshal(&rec.Flags) // unreadable flags read as unset
	}
	return rec
}

func (repo recordRepository) CreateRecord(ctx context.Context, rec record.Record, exec ...core.DBExecutor) (record.Record, error) {
	rec.ID = uuid.New().String()
	r := repo.row(rec)
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO clinical_record (id, student_id, requirement_id, patient_id, step_name,
		                             treatment_name, status, rsu_units, cda_units, is_exam, flags,
		                             reviewed_by, review_note, performed_at, created_at, updated_at)
		VALUES (`+strmangle.Placeholders(true, 16, 1, 1)+`)`,
		r.ID, r.StudentID, r.RequirementID, r.PatientID, r.StepName,
		r.TreatmentName, r.Status, r.RSUUnits, r.CDAUnits, r.IsExam, r.Flags,
		r.ReviewedBy, r.ReviewNote, r.PerformedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "inserting record")
	}
	// read back through the joins so the result carries display fields
	return repo.GetRecord(ctx, record.GetFilter{ID: rec.ID}, exec...)
}

func (repo recordRepository) QueryRecords(ctx context.Context, filter *record.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]record.Record, error) {
	query := `SELECT ` + recordColumns + recordSource
	var where []string
	var args []interface{}
	if filter != nil {
		if filter.StudentID != "" {
			if !validUUID(filter.StudentID) {
				return []record.Record{}, nil
			}
			where = append(where, `cr.student_id = ?`)
			args = append(args, filter.StudentID)
		}
		if filter.RequirementID != "" {
			if !validUUID(filter.RequirementID) {
				return []record.Record{}, nil
			}
			where = append(where, `cr.requirement_id = ?`)
			args = append(args, filter.RequirementID)
		}
		if filter.DivisionCode != "" {
			where = append(where, `LOWER(d.code) = LOWER(?)`)
			args = append(args, filter.DivisionCode)
		}
		if len(filter.Statuses) > 0 {
			where = append(where, `cr.status IN (?)`)
			args = append(args, filter.Statuses)
		}
		if filter.IsExam != nil {
			where = append(where, `cr.is_exam = ?`)
			args = append(args, *filter.IsExam)
		}
		if !filter.PerformedFrom.IsZero() {
			where = append(where, `cr.performed_at >= ?`)
			args = append(args, filter.PerformedFrom.UTC())
		}
		if !filter.PerformedTo.IsZero() {
			where = append(where, `cr.performed_at <= ?`)
			args = append(args, filter.PerformedTo.UTC())
		}
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	// the default ordering keeps result sets stable across identical calls
	query += orderBy(ordering, `created_at ASC, id ASC`)

	var err error
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expanding record filters")
	}
	rows, err := repo.getExec(exec).QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	defer rows.Close()

	var rws []recordRow
	if err = sqlx.StructScan(rows, &rws); err != nil {
		return nil, errors.Wrap(err, "scanning records")
	}
	recs := make([]record.Record, len(rws))
	for i, r := range rws {
		recs[i] = repo.unrow(r)
	}
	return recs, nil
}

func (repo recordRepository) GetRecord(ctx context.Context, filter record.GetFilter, exec ...core.DBExecutor) (record.Record, error) {
	if !validUUID(filter.ID) {
		return record.Record{}, record.ErrNotFound
	}

	var r recordRow
	err := repo.getExec(exec).QueryRowContext(ctx, `SELECT `+recordColumns+recordSource+` WHERE cr.id = $1`, filter.ID).
		Scan(r.fields()...)
	if err != nil {
		return record.Record{}, trapNoRowsErr(err, record.ErrNotFound, "getting record")
	}
	return repo.unrow(r), nil
}

func (repo recordRepository) UpdateRecord(ctx context.Context, rec record.Record, exec ...core.DBExecutor) (record.Record, error) {
	r := repo.row(rec)
	res, err := repo.getExec(exec).ExecContext(ctx, `
		UPDATE clinical_record
		SET requirement_id = $1, patient_id = $2, step_name = $3, treatment_name = $4, status = $5,
		    rsu_units = $6, cda_units = $7, is_exam = $8, flags = $9, reviewed_by = $10,
		    review_note = $11, performed_at = $12, updated_at = $13
		WHERE id = $14`,
		r.RequirementID, r.PatientID, r.StepName, r.TreatmentName, r.Status,
		r.RSUUnits, r.CDAUnits, r.IsExam, r.Flags, r.ReviewedBy,
		r.ReviewNote, r.PerformedAt, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return record.Record{}, errors.Wrap(err, "updating record")
	}
	if n, err := res.RowsAffected(); err != nil {
		return record.Record{}, errors.Wrap(err, "updating record")
	} else if n == 0 {
		return record.Record{}, record.ErrNotFound
	}
	return repo.GetRecord(ctx, record.GetFilter{ID: rec.ID}, exec...)
}

func (repo recordRepository) DeleteRecordsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM clinical_record WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "expanding record ids")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting records")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting records")
	}
	return int(cnt), nil
}

func (repo recordRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return getExec(repo.exec, svcExec)
}
