package dummydb

import (
	"strings"
	"sync"
	"time"

	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
	"github.com/tmdent/clinlog/core/user"
)

type (
	// DB is an in-memory stand-in for the real database, used by tests and
	// local development. It opens with the seeded divisions, like a freshly
	// migrated real one.
	DB struct {
		user        *userTable
		division    *divisionTable
		requirement *requirementTable
		record      *recordTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	divisionTable struct {
		sync.RWMutex
		table map[string]*requirement.Division
	}

	requirementTable struct {
		sync.RWMutex
		table map[string]*requirement.Requirement
	}

	recordTable struct {
		sync.RWMutex
		table map[string]*record.Record
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		division:    &divisionTable{table: make(map[string]*requirement.Division)},
		requirement: &requirementTable{table: make(map[string]*requirement.Requirement)},
		record:      &recordTable{table: make(map[string]*record.Record)},
	}

	now := time.Now().UTC()
	for _, div := range []requirement.Division{
		{ID: "d1000000-0000-4000-8000-000000000001", Code: "ENDO", Name: "Endodontics"},
		{ID: "d1000000-0000-4000-8000-000000000002", Code: "PROS", Name: "Prosthodontics"},
		{ID: "d1000000-0000-4000-8000-000000000003", Code: "OPER", Name: "Operative Dentistry"},
		{ID: "d1000000-0000-4000-8000-000000000004", Code: "PEDO", Name: "Pediatric Dentistry"},
	} {
		div.CreatedAt, div.UpdatedAt = now, now
		d := div
		db.division.table[d.ID] = &d
	}
	return db, nil
}

// snapshot helpers; each locks only its own table so callers never hold two
// locks at once.

func (db *DB) userByID(id string) (user.User, bool) {
	db.user.RLock()
	defer db.user.RUnlock()

	if usr, ok := db.user.table[id]; ok {
		return *usr, true
	}
	return user.User{}, false
}

func (db *DB) divisionByID(id string) (requirement.Division, bool) {
	db.division.RLock()
	defer db.division.RUnlock()

	if div, ok := db.division.table[id]; ok {
		return *div, true
	}
	return requirement.Division{}, false
}

func (db *DB) requirementByID(id string) (requirement.Requirement, bool) {
	db.requirement.RLock()
	defer db.requirement.RUnlock()

	if req, ok := db.requirement.table[id]; ok {
		return *req, true
	}
	return requirement.Requirement{}, false
}

func (db *DB) allRecords() []record.Record {
	db.record.RLock()
	defer db.record.RUnlock()

	recs := make([]record.Record, 0, len(db.record.table))
	for _, rec := range db.record.table {
		recs = append(recs, *rec)
	}
	return recs
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func contains(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}

func hasAny(haystack, needles []string) bool {
	for _, n := range needles {
		if contains(haystack, n) {
			return true
		}
	}
	return false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case !a && b:
		return -1
	case a && !b:
		return 1
	}
	return 0
}
