package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/ecole/apps/api/echo"
	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/roster"
	"github.com/trezcool/ecole/core/user"
	cachesvc "github.com/trezcool/ecole/services/cache"
	emailsvc "github.com/trezcool/ecole/services/email"
	logsvc "github.com/trezcool/ecole/services/logger"
	notifysvc "github.com/trezcool/ecole/services/notify"
	sqlxrepos "github.com/trezcool/ecole/storage/database/sqlx"
	testutil "github.com/trezcool/ecole/tests"
)

const csrfTestToken = "test-csrf-token"

var errMissingToken = httpErr{Message: "user not authenticated"}

type fixture struct {
	app     *echoapi.Server
	db      *sqlx.DB
	conf    *core.Config
	mailSvc *emailsvc.ConsoleService
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	conf.Server.DisableRequestLogs = true
	conf.Server.JWTExpirationDelta = time.Hour

	// set up DB & repos
	db := testutil.PrepareDB(t)
	msgRepo := sqlxrepos.NewMessagingRepository(db)
	rosterRepo := sqlxrepos.NewRosterRepository(db)
	dirRepo := sqlxrepos.NewDirectoryRepository(db)

	// set up services
	logger := logsvc.NewNopLogger()
	validate, translator := testutil.NewTranslatedValidator()
	mailSvc := emailsvc.NewConsoleService(conf, nil)
	rosterSvc := roster.NewService(conf, rosterRepo, cachesvc.NewLRUCache(16), logger)
	notifier := notifysvc.NewHandler(dirRepo, mailSvc, logger)
	msgSvc := messaging.NewService(db, msgRepo, rosterSvc, notifier, validate, logger)

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		MessagingSvc: msgSvc,
		RosterSvc:    rosterSvc,
		Translator:   translator,
	})
	t.Cleanup(func() { _ = app.Close() })

	return fixture{app: app, db: db, conf: conf, mailSvc: mailSvc}
}

type httpErr struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	noCSRF   bool
	wantCode int
	wantData []byte
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

// withCSRF adds a matching csrf cookie and header.
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: csrfTestToken})
	req.Header.Set("X-CSRF-Token", csrfTestToken)
	return req
}

func (f fixture) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	if !tt.noCSRF {
		withCSRF(req)
	}
	f.app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, conf *core.Config, ref user.Ref) string {
	token, err := echoapi.GenerateToken(conf, testutil.Principal(ref))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
	return body
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
