package tests

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/tmdent/clinlog/core/progress"
	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/user"
	"github.com/tmdent/clinlog/tests"
)

func Test_progressApi_studentProgress(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "King", "user02", "king@test.cd", "", []string{user.RoleStudent}, true)
	instructor := testutil.CreateUser(t, usrRepo, "Instructor", "instruct", "instruct@test.cd", "", []string{user.RoleInstructor}, true)

	oper := testutil.Division(t, reqRepo, "OPER")
	amalgam := testutil.CreateRequirement(t, reqRepo, oper.ID, "Amalgam Restoration", 10, 5, false, nil)

	rec1 := testutil.CreateRecord(t, recRepo, student.ID, amalgam.ID, record.StatusVerified, 4, 2, false, nil)
	rec2 := testutil.CreateRecord(t, recRepo, student.ID, amalgam.ID, record.StatusCompleted, 2, 1, false, nil)
	testutil.CreateRecord(t, recRepo, student.ID, amalgam.ID, record.StatusPlanned, 9, 9, false, nil) // planned work never counts
	testutil.CreateRecord(t, recRepo, other.ID, amalgam.ID, record.StatusVerified, 8, 4, false, nil)  // someone else's work

	wantReport := progress.DivisionReport{
		DivisionName:     oper.Name,
		RSUCompletionPct: 40,
		CDACompletionPct: 40,
		Requirements: []progress.RequirementProgress{{
			RequirementID: amalgam.ID,
			Name:          amalgam.Name,
			MinimumRSU:    10,
			MinimumCDA:    5,
			CurrentRSU:    4,
			CurrentCDA:    2,
			PendingRSU:    2,
			PendingCDA:    1,
			IsSelectable:  true,
			CalcMethod:    "Sum",
			RSUCalcHint:   "4 verified + 2 pending. Sum of case units.",
			CDACalcHint:   "2 verified + 1 pending. Sum of case units.",
			RSURecords: []progress.RecordRef{
				{RecordID: rec1.ID, Status: record.StatusVerified, PerformedAt: rec1.PerformedAt, Value: 4},
				{RecordID: rec2.ID, Status: record.StatusCompleted, PerformedAt: rec2.PerformedAt, Value: 2, Pending: true},
			},
			CDARecords: []progress.RecordRef{
				{RecordID: rec1.ID, Status: record.StatusVerified, PerformedAt: rec1.PerformedAt, Value: 2},
				{RecordID: rec2.ID, Status: record.StatusCompleted, PerformedAt: rec2.PerformedAt, Value: 1, Pending: true},
			},
		}},
	}

	notFound := marchallObj(t, httpErr{Error: "not found"})
	tests := []httpTest{
		{
			name: "Auth required", path: "/v1/students/" + student.ID + "/progress",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Progress of other students is hidden", path: "/v1/students/" + student.ID + "/progress",
			token: getToken(t, other), wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "Unknown student", path: "/v1/students/lol/progress",
			token: getToken(t, instructor), wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "Students see their own progress", path: "/v1/students/" + student.ID + "/progress",
			token: getToken(t, student), wantData: marchallList(t, wantReport),
		},
		{
			name: "Staff see any student's progress", path: "/v1/students/" + student.ID + "/progress",
			token: getToken(t, instructor), wantData: marchallList(t, wantReport),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_progressApi_progressExport(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "user3@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "King", "user02", "king@test.cd", "", []string{user.RoleStudent}, true)

	oper := testutil.Division(t, reqRepo, "OPER")
	amalgam := testutil.CreateRequirement(t, reqRepo, oper.ID, "Amalgam Restoration", 10, 5, false, nil)
	testutil.CreateRecord(t, recRepo, student.ID, amalgam.ID, record.StatusVerified, 4, 2, false, nil)

	path := "/v1/students/" + student.ID + "/progress/export"

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, path)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Exports of other students are hidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, other))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("Workbook delivered", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, student))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
			t.Errorf("failed! Content-Type = %v", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="progress-hero.xlsx"` {
			t.Errorf("failed! Content-Disposition = %v", cd)
		}
		// xlsx files are zip archives
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
			t.Error("failed! body is not a workbook")
		}
	})
}
