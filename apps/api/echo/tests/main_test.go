package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/presensi/apps/api/echo"
	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
	"github.com/trezcool/presensi/services/metrics"
	"github.com/trezcool/presensi/tests"
)

var (
	conf = &core.Config{
		AppName:   "Presensi",
		SecretKey: "secret",
		TestMode:  true,
		Server: core.ServerConfig{
			DisableReqLogs:     true,
			JWTExpirationDelta: time.Hour,
		},
		Store: core.StoreConfig{Engine: core.EngineMemory, MaxBatchSize: 500},
	}

	admin = core.Actor{ID: "u-admin", Email: "admin@smk.sch.id", Role: RoleAdmin}
	guru  = core.Actor{ID: "u-guru", Email: "guru@smk.sch.id", Role: RoleGuru}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func setup(t *testing.T) *Server {
	store := testutil.OpenStore(t)
	logger := testutil.NewLogger(t)
	validate, translator := testutil.NewValidator()

	rosterSvc := roster.NewService(store, logger, validate)
	classSvc := class.NewService(store, rosterSvc, logger, validate)
	ledger := attendance.NewService(store, logger, validate, "")

	return NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Translator: translator,
		Metrics:    metrics.New(),
		Roster:     rosterSvc,
		Classes:    classSvc,
		Attendance: ledger,
		Recap:      recap.NewService(classSvc, rosterSvc, ledger),
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

func getToken(t *testing.T, actor core.Actor) string {
	token, err := GenerateToken(conf, NewClaims(conf, actor))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
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

func runHttpTests(t *testing.T, app *Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

var importRows = []roster.ImportRow{
	{NISN: "1001", Nama: "Budi", JK: "l", Rombel: "X-TE1", Tingkat: "10", ProgramKeahlian: "Teknik Elektro"},
	{NISN: "1002", Nama: "Siti", JK: "P", Rombel: "X-TE1", Tingkat: "10", ProgramKeahlian: "Teknik Elektro"},
	{NISN: "", Nama: "Tanpa NISN", Rombel: "X-TE1"},
}

// importStudents imports importRows through the API.
func importStudents(t *testing.T, app *Server) {
	body := marchallObj(t, map[string]interface{}{"rows": importRows})
	req, rec := newAuthRequest(http.MethodPost, "/v1/students/import", getToken(t, admin), body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
