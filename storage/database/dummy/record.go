package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/record"
)

type recordRepository struct {
	db *DB
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) record.Repository {
	return &recordRepository{db: db}
}

// fill joins the student display fields in; there is no patient roster in the
// dummy database so patient fields stay as stored.
func (repo *recordRepository) fill(rec record.Record) record.Record {
	if usr, ok := repo.db.userByID(rec.StudentID); ok {
		rec.StudentName, rec.StudentEmail = usr.Name, usr.Email
	}
	return rec
}

func (repo *recordRepository) CreateRecord(ctx context.Context, rec record.Record, exec ...core.DBExecutor) (record.Record, error) {
	repo.db.record.Lock()
	rec.ID = uuid.New().String()
	repo.db.record.table[rec.ID] = &rec
	repo.db.record.Unlock()

	return repo.fill(rec), nil
}

func (repo *recordRepository) QueryRecords(ctx context.Context, filter *record.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]record.Record, error) {
	all := repo.db.allRecords()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	recs := make([]record.Record, 0)
	for _, rec := range all {
		if repo.match(rec, filter) {
			recs = append(recs, repo.fill(rec))
		}
	}
	return recs, nil
}

func (repo *recordRepository) match(rec record.Record, filter *record.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.StudentID != "" && rec.StudentID != filter.StudentID {
		return false
	}
	if filter.RequirementID != "" && rec.RequirementID != filter.RequirementID {
		return false
	}
	if filter.DivisionCode != "" {
		req, ok := repo.db.requirementByID(rec.RequirementID)
		if !ok || !strings.EqualFold(req.DivisionCode, filter.DivisionCode) {
			return false
		}
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, rec.Status) {
		return false
	}
	if filter.IsExam != nil && rec.IsExam != *filter.IsExam {
		return false
	}
	if !filter.PerformedFrom.IsZero() && rec.PerformedAt.Before(filter.PerformedFrom) {
		return false
	}
	if !filter.PerformedTo.IsZero() && rec.PerformedAt.After(filter.PerformedTo) {
		return false
	}
	return true
}

func (repo *recordRepository) GetRecord(ctx context.Context, filter record.GetFilter, exec ...core.DBExecutor) (record.Record, error) {
	repo.db.record.RLock()
	rec, ok := repo.db.record.table[filter.ID]
	repo.db.record.RUnlock()

	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	return repo.fill(*rec), nil
}

func (repo *recordRepository) UpdateRecord(ctx context.Context, rec record.Record, exec ...core.DBExecutor) (record.Record, error) {
	repo.db.record.Lock()
	if _, ok := repo.db.record.table[rec.ID]; !ok {
		repo.db.record.Unlock()
		return record.Record{}, record.ErrNotFound
	}
	repo.db.record.table[rec.ID] = &rec
	repo.db.record.Unlock()

	return repo.fill(rec), nil
}

func (repo *recordRepository) DeleteRecordsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.record.Lock()
	defer repo.db.record.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.record.table[id]; ok {
			delete(repo.db.record.table, id)
			cnt++
		}
	}
	return cnt, nil
}
