package progress

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
)

type fakeReqRepo struct {
	requirement.Repository
	reqs []requirement.Requirement
	err  error
}

func (f fakeReqRepo) QueryRequirements(ctx context.Context, filter *requirement.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]requirement.Requirement, error) {
	return f.reqs, f.err
}

type fakeRecRepo struct {
	record.Repository
	recs []record.Record
	err  error
}

func (f fakeRecRepo) QueryRecords(ctx context.Context, filter *record.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]record.Record, error) {
	return f.recs, f.err
}

type captureLogger struct{ errs []string }

func (l *captureLogger) Debug(msg string, args ...interface{}) {}
func (l *captureLogger) Info(msg string, args ...interface{})  {}
func (l *captureLogger) Warn(msg string, args ...interface{})  {}
func (l *captureLogger) Error(msg string, args ...interface{}) { l.errs = append(l.errs, msg) }
func (l *captureLogger) Fatal(msg string, args ...interface{}) {}

func inDiv(req requirement.Requirement, id, code, name string) requirement.Requirement {
	req.DivisionID = id
	req.DivisionCode = code
	req.DivisionName = name
	return req
}

// reportFixture is a two-division catalog exercising transfers, derived
// requirements, sub-counts and feeder exclusion in one report.
func reportFixture() ([]requirement.Requirement, []record.Record) {
	reqs := []requirement.Requirement{
		// catalog order puts Prosthodontics first to prove the report sorts by name
		inDiv(testReq("req-rpd", prosRPD, 2, 0, `{"type":"derived","sources":["req-mrpd","req-arpd"]}`), "div-pros", DivProsthodontics, "Prosthodontics"),
		inDiv(testReq("req-mrpd", prosMetalRPD, 1, 0, ""), "div-pros", DivProsthodontics, "Prosthodontics"),
		inDiv(testReq("req-arpd", prosAcrylRPD, 1, 0, ""), "div-pros", DivProsthodontics, "Prosthodontics"),
		inDiv(testReq("req-ant", endoAnterior, 5, 0, ""), "div-endo", DivEndodontics, "Endodontics"),
		inDiv(testReq("req-mol", endoMolar, 1, 0, ""), "div-endo", DivEndodontics, "Endodontics"),
		inDiv(testReq("req-obs", "Observed Cases", 1, 0, `{"type":"source_only"}`), "div-endo", DivEndodontics, "Endodontics"),
	}
	recs := []record.Record{
		testRec("rec-a1", "req-ant", record.StatusVerified, 1, 0),
		testRec("rec-m1", "req-mol", record.StatusVerified, 1, 0),
		testRec("rec-m2", "req-mol", record.StatusVerified, 1, 0),
		testRec("rec-m3", "req-mol", record.StatusVerified, 1, 0),
		testRec("rec-m4", "req-mol", record.StatusPendingVerification, 1, 0),
		testRec("rec-o1", "req-obs", record.StatusVerified, 1, 0),
		testRec("rec-p1", "req-mrpd", record.StatusVerified, 1, 0),
		testRec("rec-p2", "req-arpd", record.StatusPendingVerification, 1, 0),
		testRec("rec-x1", "req-nowhere", record.StatusVerified, 9, 9), // unknown requirement, invisible
	}
	return reqs, recs
}

func findProgress(t *testing.T, rep DivisionReport, reqID string) RequirementProgress {
	t.Helper()
	for _, rp := range rep.Requirements {
		if rp.RequirementID == reqID {
			return rp
		}
	}
	t.Fatalf("requirement %s not in report", reqID)
	return RequirementProgress{}
}

func TestServiceReport(t *testing.T) {
	reqs, recs := reportFixture()
	logger := &captureLogger{}
	svc := NewService(fakeReqRepo{reqs: reqs}, fakeRecRepo{recs: recs}, NewRegistry(), logger)

	reports, err := svc.Report("std-1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Empty(t, logger.errs)

	endo, pros := reports[0], reports[1]
	assert.Equal(t, "Endodontics", endo.DivisionName) // sorted by name
	assert.Equal(t, "Prosthodontics", pros.DivisionName)

	// the feeder requirement is excluded from the listing and the percentage
	require.Len(t, endo.Requirements, 2)

	ant := findProgress(t, endo, "req-ant")
	assert.Equal(t, 3.0, ant.CurrentRSU) // 1 own + 2 moved in from molar
	assert.Equal(t, "Sum", ant.CalcMethod)
	assert.Equal(t, "3 verified + 0 pending. Sum of case units. 2 received from Molar Root Canal Treatment.", ant.RSUCalcHint)
	require.Len(t, ant.RSURecords, 3)
	assert.Equal(t, endoMolar, ant.RSURecords[1].ReceivedFrom)

	mol := findProgress(t, endo, "req-mol")
	assert.Equal(t, 1.0, mol.CurrentRSU)
	assert.Equal(t, 1.0, mol.PendingRSU)
	assert.Equal(t, "1 verified + 1 pending. Sum of case units. 2 moved to Anterior Root Canal Treatment.", mol.RSUCalcHint)

	// anterior 3/5 and molar 1/1 average to 80%
	assert.Equal(t, 80.0, endo.RSUCompletionPct)
	assert.Equal(t, 0.0, endo.CDACompletionPct)

	rpd := findProgress(t, pros, "req-rpd")
	assert.Equal(t, 1.0, rpd.CurrentRSU)
	assert.Equal(t, 1.0, rpd.PendingRSU)
	assert.Equal(t, "Derived", rpd.CalcMethod)
	require.NotNil(t, rpd.SubCounts)
	assert.Equal(t, SubCount{Verified: 1, Pending: 0}, rpd.SubCounts["MRPD"])
	assert.Equal(t, SubCount{Verified: 0, Pending: 1}, rpd.SubCounts["ARPD"])

	// mrpd 1/1, arpd 0/1, rpd 1/2 average to 50%
	assert.Equal(t, 50.0, pros.RSUCompletionPct)

	// empty axes still render as lists
	assert.NotNil(t, rpd.CDARecords)
}

func TestServiceReportIdempotent(t *testing.T) {
	reqs, recs := reportFixture()
	svc := NewService(fakeReqRepo{reqs: reqs}, fakeRecRepo{recs: recs}, NewRegistry(), &captureLogger{})

	first, err := svc.Report("std-1")
	require.NoError(t, err)
	second, err := svc.Report("std-1")
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestServiceReportNoRecords(t *testing.T) {
	reqs, _ := reportFixture()
	svc := NewService(fakeReqRepo{reqs: reqs}, fakeRecRepo{}, NewRegistry(), &captureLogger{})

	reports, err := svc.Report("std-1")
	require.NoError(t, err)

	// every division is reported, zeroed out
	require.Len(t, reports, 2)
	assert.Equal(t, 0.0, reports[0].RSUCompletionPct)
	ant := findProgress(t, reports[0], "req-ant")
	assert.Equal(t, 0.0, ant.CurrentRSU)
	assert.NotNil(t, ant.RSURecords)
}

func TestServiceReportSourceErrors(t *testing.T) {
	reqs, recs := reportFixture()
	logger := &captureLogger{}

	svc := NewService(fakeReqRepo{err: errors.New("boom")}, fakeRecRepo{recs: recs}, NewRegistry(), logger)
	_, err := svc.Report("std-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying requirements")

	svc = NewService(fakeReqRepo{reqs: reqs}, fakeRecRepo{err: errors.New("boom")}, NewRegistry(), logger)
	_, err = svc.Report("std-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying records")
}

// brokenRule mutates every entry before failing, to prove the rollback.
type brokenRule struct{ panics bool }

func (r brokenRule) Apply(reqs []requirement.Requirement, recs []record.Record, prog Map) error {
	for _, entry := range prog {
		entry.RSU += 100
	}
	if r.panics {
		panic("no molar requirement")
	}
	return errors.New("mid-rule failure")
}

func TestServiceReportRuleFailure(t *testing.T) {
	reqs, recs := reportFixture()

	tests := []struct {
		name string
		rule Rule
	}{
		{"error", brokenRule{}},
		{"panic", brokenRule{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &captureLogger{}
			registry := NewRegistry()
			registry.Register(DivEndodontics, tt.rule)
			svc := NewService(fakeReqRepo{reqs: reqs}, fakeRecRepo{recs: recs}, registry, logger)

			reports, err := svc.Report("std-1")
			require.NoError(t, err)

			// the division degrades to its pre-rule totals
			ant := findProgress(t, reports[0], "req-ant")
			assert.Equal(t, 1.0, ant.CurrentRSU)
			mol := findProgress(t, reports[0], "req-mol")
			assert.Equal(t, 3.0, mol.CurrentRSU)

			require.Len(t, logger.errs, 1)
			assert.Contains(t, logger.errs[0], "division rule ENDO failed")

			// the untouched division still runs its own rule
			rpd := findProgress(t, reports[1], "req-rpd")
			assert.NotNil(t, rpd.SubCounts)
		})
	}
}
