package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/requirement"
)

type requirementRepository struct {
	db *DB
}

var _ requirement.Repository = (*requirementRepository)(nil) // interface compliance check

func NewRequirementRepository(db *DB) requirement.Repository {
	return &requirementRepository{db: db}
}

func (repo *requirementRepository) query() []requirement.Requirement {
	reqs := make([]requirement.Requirement, 0, len(repo.db.requirement.table))
	for _, req := range repo.db.requirement.table {
		reqs = append(reqs, *req)
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].DivisionName != reqs[j].DivisionName {
			return reqs[i].DivisionName < reqs[j].DivisionName
		}
		return reqs[i].Name < reqs[j].Name
	})
	return reqs
}

func (repo *requirementRepository) QueryDivisions(ctx context.Context, exec ...core.DBExecutor) ([]requirement.Division, error) {
	repo.db.division.RLock()
	defer repo.db.division.RUnlock()

	divs := make([]requirement.Division, 0, len(repo.db.division.table))
	for _, div := range repo.db.division.table {
		divs = append(divs, *div)
	}
	sort.Slice(divs, func(i, j int) bool { return divs[i].Name < divs[j].Name })
	return divs, nil
}

func (repo *requirementRepository) GetDivision(ctx context.Context, filter requirement.GetDivisionFilter, exec ...core.DBExecutor) (requirement.Division, error) {
	repo.db.division.RLock()
	defer repo.db.division.RUnlock()

	switch {
	case filter.ID != "":
		if div, ok := repo.db.division.table[filter.ID]; ok {
			return *div, nil
		}
	case filter.Code != "":
		for _, div := range repo.db.division.table {
			if strings.EqualFold(div.Code, filter.Code) {
				return *div, nil
			}
		}
	}
	return requirement.Division{}, requirement.ErrDivisionNotFound
}

func (repo *requirementRepository) CreateRequirement(ctx context.Context, req requirement.Requirement, exec ...core.DBExecutor) (requirement.Requirement, error) {
	div, ok := repo.db.divisionByID(req.DivisionID)
	if !ok {
		return requirement.Requirement{}, requirement.ErrDivisionNotFound
	}

	repo.db.requirement.Lock()
	defer repo.db.requirement.Unlock()

	for _, other := range repo.db.requirement.table {
		if other.DivisionID == req.DivisionID && other.Name == req.Name {
			return requirement.Requirement{}, requirement.ErrRequirementExists
		}
	}

	req.ID = uuid.New().String()
	req.DivisionCode, req.DivisionName = div.Code, div.Name
	repo.db.requirement.table[req.ID] = &req
	return req, nil
}

func (repo *requirementRepository) QueryRequirements(ctx context.Context, filter *requirement.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]requirement.Requirement, error) {
	repo.db.requirement.RLock()
	defer repo.db.requirement.RUnlock()

	reqs := make([]requirement.Requirement, 0)
	for _, req := range repo.query() {
		if matchRequirement(req, filter) {
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}

func matchRequirement(req requirement.Requirement, filter *requirement.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" && !containsFold(req.Name, filter.Search) && !containsFold(req.CDAName, filter.Search) {
		return false
	}
	if filter.DivisionID != "" && req.DivisionID != filter.DivisionID {
		return false
	}
	if filter.DivisionCode != "" && !strings.EqualFold(req.DivisionCode, filter.DivisionCode) {
		return false
	}
	if filter.IsSelectable != nil && req.IsSelectable != *filter.IsSelectable {
		return false
	}
	if filter.IsExam != nil && req.IsExam != *filter.IsExam {
		return false
	}
	return true
}

func (repo *requirementRepository) GetRequirement(ctx context.Context, filter requirement.GetFilter, exec ...core.DBExecutor) (requirement.Requirement, error) {
	repo.db.requirement.RLock()
	defer repo.db.requirement.RUnlock()

	switch {
	case filter.ID != "":
		if req, ok := repo.db.requirement.table[filter.ID]; ok {
			return *req, nil
		}
	case filter.Name != "" && filter.DivisionID != "":
		for _, req := range repo.db.requirement.table {
			if req.Name == filter.Name && req.DivisionID == filter.DivisionID {
				return *req, nil
			}
		}
	}
	return requirement.Requirement{}, requirement.ErrNotFound
}

func (repo *requirementRepository) UpdateRequirement(ctx context.Context, req requirement.Requirement, exec ...core.DBExecutor) (requirement.Requirement, error) {
	div, ok := repo.db.divisionByID(req.DivisionID)
	if !ok {
		return requirement.Requirement{}, requirement.ErrDivisionNotFound
	}

	repo.db.requirement.Lock()
	defer repo.db.requirement.Unlock()

	if _, ok := repo.db.requirement.table[req.ID]; !ok {
		return requirement.Requirement{}, requirement.ErrNotFound
	}
	for _, other := range repo.db.requirement.table {
		if other.ID != req.ID && other.DivisionID == req.DivisionID && other.Name == req.Name {
			return requirement.Requirement{}, requirement.ErrRequirementExists
		}
	}

	req.DivisionCode, req.DivisionName = div.Code, div.Name
	repo.db.requirement.table[req.ID] = &req
	return req, nil
}

func (repo *requirementRepository) DeleteRequirementsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	for _, rec := range repo.db.allRecords() {
		for _, id := range ids {
			if rec.RequirementID == id {
				return 0, requirement.ErrRequirementInUse
			}
		}
	}

	repo.db.requirement.Lock()
	defer repo.db.requirement.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.requirement.table[id]; ok {
			delete(repo.db.requirement.table, id)
			cnt++
		}
	}
	return cnt, nil
}
