package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/volatiletech/randomize"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
	"github.com/tmdent/clinlog/core/user"
	dummydb "github.com/tmdent/clinlog/storage/database/dummy"
)

var seed = randomize.NewSeed()

// OpenDB returns a fresh in-memory database seeded with the standard
// divisions, so every test starts from the same known state.
func OpenDB(t *testing.T) *dummydb.DB {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// RandomStudent creates an active student with generated credentials, for
// tests that do not care about the identity.
func RandomStudent(t *testing.T, repo user.Repository) user.User {
	uname := fmt.Sprintf("student%d", seed.NextInt())
	return CreateUser(t, repo, "Student "+uname, uname, uname+"@test.tld", "", []string{user.RoleStudent}, true)
}

// Division looks up one of the seeded divisions by code.
func Division(t *testing.T, repo requirement.Repository, code string) requirement.Division {
	div, err := repo.GetDivision(context.Background(), requirement.GetDivisionFilter{Code: code})
	if err != nil {
		t.Fatalf("Division(%s) failed: %v", code, err)
	}
	return div
}

func CreateRequirement(
	t *testing.T,
	repo requirement.Repository,
	divisionID, name string,
	minRSU, minCDA float64,
	isExam bool,
	aggConfig types.JSON,
) requirement.Requirement {
	now := time.Now().UTC()
	req := requirement.Requirement{
		DivisionID:   divisionID,
		Name:         name,
		MinimumRSU:   minRSU,
		MinimumCDA:   minCDA,
		IsExam:       isExam,
		IsSelectable: true,
		AggConfig:    aggConfig,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	req, err := repo.CreateRequirement(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateRequirement(%s) failed: %v", name, err)
	}
	return req
}

func CreateRecord(
	t *testing.T,
	repo record.Repository,
	studentID, requirementID, status string,
	rsu, cda float64,
	isExam bool,
	flags record.Flags,
	performedAt ...time.Time,
) record.Record {
	now := time.Now().UTC()
	performed := now
	if len(performedAt) > 0 {
		performed = performedAt[0].UTC()
	}
	rec := record.Record{
		StudentID:     studentID,
		RequirementID: requirementID,
		Status:        status,
		RSUUnits:      rsu,
		CDAUnits:      cda,
		IsExam:        isExam,
		Flags:         flags,
		PerformedAt:   performed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	rec, err := repo.CreateRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}
