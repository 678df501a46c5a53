package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/tmdent/clinlog/apps/api/echo"
	"github.com/tmdent/clinlog/core"
	"github.com/tmdent/clinlog/core/progress"
	"github.com/tmdent/clinlog/core/record"
	"github.com/tmdent/clinlog/core/requirement"
	"github.com/tmdent/clinlog/core/user"
	emailsvc "github.com/tmdent/clinlog/services/email"
	dummydb "github.com/tmdent/clinlog/storage/database/dummy"
	testutil "github.com/tmdent/clinlog/tests"
)

// initialized once in TestMain
var (
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator

	usrRepo user.Repository
	reqRepo requirement.Repository
	recRepo record.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

// setup returns a Server wired to a fresh in-memory database.
func setup(t *testing.T) Server {
	// set up DB & repos
	db := testutil.OpenDB(t)
	usrRepo = dummydb.NewUserRepository(db)
	reqRepo = dummydb.NewRequirementRepository(db)
	recRepo = dummydb.NewRecordRepository(db)

	// set up services
	emailsvc.SentMessages = nil
	mailSvc := emailsvc.NewConsoleServiceMock()
	usrSvc := user.NewServiceMock(usrRepo, mailSvc)
	reqSvc := requirement.NewService(reqRepo)
	recSvc := record.NewService(recRepo, reqRepo, mailSvc, core.Conf)
	progSvc := progress.NewService(reqRepo, recRepo, progress.NewRegistry(), logger)

	// set up server
	return NewServer(ServerDeps{
		Conf:           core.Conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		RequirementSvc: reqSvc,
		RecordSvc:      recSvc,
		ProgressSvc:    progSvc,
		Validate:       validate,
		Translator:     translator,
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
