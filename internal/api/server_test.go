package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanygsg/taurimedrec/internal/commands"
	"github.com/germanygsg/taurimedrec/internal/db"
	"github.com/germanygsg/taurimedrec/internal/httputil"
	"github.com/germanygsg/taurimedrec/internal/metrics"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
	"github.com/germanygsg/taurimedrec/internal/platform"
	"github.com/germanygsg/taurimedrec/internal/report"
	"github.com/germanygsg/taurimedrec/internal/testutil"
)

type testServer struct {
	*Server
	mux       *http.ServeMux
	db        *db.DB
	backupDir string
}

func setupTestServer(t *testing.T, p platform.Provider) *testServer {
	t.Helper()
	store, err := db.NewDB(cloneAPITestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	backupDir := filepath.Join(t.TempDir(), "backups")
	s := NewServer(commands.NewHandler(store, p), store, backupDir)
	return &testServer{Server: s, mux: s.ServeMux(), db: store, backupDir: backupDir}
}

const patientBody = `{"patient":{"record_number":"PT002025000001","name":"Ani","age":25,"phone_number":"0811","address":"Jl. Merdeka 1"}}`

func TestInvokeAddAndList(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/add_patient", patientBody)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var msg string
	testutil.DecodeJSON(t, rec, &msg)
	assert.Equal(t, commands.MsgAdded, msg)

	rec = testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/get_patients", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var patients []db.Patient
	testutil.DecodeJSON(t, rec, &patients)
	require.Len(t, patients, 1)
	assert.Equal(t, "Ani", patients[0].Name)
	require.NotNil(t, patients[0].Address)
	assert.Equal(t, "Jl. Merdeka 1", *patients[0].Address)
	assert.Nil(t, patients[0].InitialDiagnosis)
	assert.NotNil(t, patients[0].ID)
	assert.NotNil(t, patients[0].CreatedAt)
}

func TestInvokeEmptyListIsArray(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/get_patients", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestInvokeGenerateRecordNumber(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/generate_record_number", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var rn string
	testutil.DecodeJSON(t, rec, &rn)
	assert.True(t, strings.HasPrefix(rn, "PT00"), rn)
	assert.True(t, strings.HasSuffix(rn, "000001"), rn)
}

func TestInvokeErrors(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/add_patient", patientBody)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"duplicate record number", http.MethodPost, "/api/invoke/add_patient", patientBody, http.StatusConflict, "constraint-violation"},
		{"unknown command", http.MethodPost, "/api/invoke/format_disk", "", http.StatusBadRequest, "invalid-argument"},
		{"bad json", http.MethodPost, "/api/invoke/delete_patient", `{"id":`, http.StatusBadRequest, "invalid-argument"},
		{"missing patient", http.MethodPost, "/api/invoke/get_patient", `{"id":999}`, http.StatusNotFound, "not-found"},
		{"print on desktop", http.MethodPost, "/api/invoke/print_invoice", `{"text":"x"}`, http.StatusNotImplemented, "unsupported"},
		{"wrong method", http.MethodGet, "/api/invoke/get_patients", "", http.StatusMethodNotAllowed, ""},
		{"no command", http.MethodPost, "/api/invoke/", "", http.StatusNotFound, ""},
		{"nested path", http.MethodPost, "/api/invoke/a/b", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.Serve(ts.mux, tt.method, tt.path, tt.body)
			testutil.AssertJSONError(t, rec, tt.status, tt.kind)
		})
	}
}

func TestInvokeBodyTooLarge(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	body := `{"text":"` + strings.Repeat("a", maxInvokeBody) + `"}`
	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/print_invoice", body)
	testutil.AssertStatusCode(t, rec.Code, http.StatusRequestEntityTooLarge)
}

func TestInvokePrintOnAndroid(t *testing.T) {
	ts := setupTestServer(t, platform.Android{Home: t.TempDir()})

	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/print_invoice", `{"text":"Total 50","job_name":"INV-1"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var out string
	testutil.DecodeJSON(t, rec, &out)
	assert.Equal(t, "PRINT:INV-1:Total 50", out)
}

func TestListCommands(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodGet, "/api/commands", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var names []string
	testutil.DecodeJSON(t, rec, &names)
	assert.Equal(t, commands.Names(), names)
}

func TestShowStatus(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})
	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/invoke/add_patient", patientBody)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = testutil.Serve(ts.mux, http.MethodGet, "/api/status", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var st Status
	testutil.DecodeJSON(t, rec, &st)

	assert.Equal(t, "desktop", st.Platform)
	assert.Equal(t, "sqlite", st.Driver)
	assert.False(t, st.InMemory)
	assert.EqualValues(t, 1, st.SchemaVersion)
	assert.EqualValues(t, 1, st.Patients)
	assert.Equal(t, ts.db.Path(), st.DBPath)

	rec = testutil.Serve(ts.mux, http.MethodPost, "/api/status", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestCreateBackup(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodPost, "/api/backup", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var out map[string]string
	testutil.DecodeJSON(t, rec, &out)
	assert.Equal(t, ts.backupDir, filepath.Dir(out["path"]))
	_, err := os.Stat(out["path"])
	assert.NoError(t, err)

	rec = testutil.Serve(ts.mux, http.MethodGet, "/api/backup", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestListAndDownloadBackups(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})

	rec := testutil.Serve(ts.mux, http.MethodGet, "/api/backups", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var backups []db.BackupInfo
	testutil.DecodeJSON(t, rec, &backups)
	assert.Empty(t, backups)

	rec = testutil.Serve(ts.mux, http.MethodPost, "/api/backup", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var out map[string]string
	testutil.DecodeJSON(t, rec, &out)
	name := filepath.Base(out["path"])

	rec = testutil.Serve(ts.mux, http.MethodGet, "/api/backups", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &backups)
	require.Len(t, backups, 1)
	assert.Equal(t, name, backups[0].Name)
	assert.Positive(t, backups[0].SizeBytes)

	rec = testutil.Serve(ts.mux, http.MethodGet, "/api/backups/"+name, "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), name)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("SQLite format 3")))

	rec = testutil.Serve(ts.mux, http.MethodGet, "/api/backups/notes.txt", "")
	testutil.AssertJSONError(t, rec, http.StatusBadRequest, "invalid-argument")
	rec = testutil.Serve(ts.mux, http.MethodGet, "/api/backups/patients-20990101-000000-ffffffff.db", "")
	testutil.AssertJSONError(t, rec, http.StatusNotFound, "not-found")
	rec = testutil.Serve(ts.mux, http.MethodDelete, "/api/backups/"+name, "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})
	rec := testutil.Serve(ts.mux, http.MethodGet, "/metrics", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	m := metrics.New(nil)
	m.RegisterPatientGauge(ts.db.CountPatients)
	ts.handler.WithObserver(m)
	mux := ts.WithMetrics(m).ServeMux()

	rec = testutil.Serve(mux, http.MethodPost, "/api/invoke/add_patient", patientBody)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	rec = testutil.Serve(mux, http.MethodPost, "/api/backup", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = testutil.Serve(mux, http.MethodGet, "/metrics", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	assert.Contains(t, body, `medrec_commands_total{command="add_patient",result="ok"} 1`)
	assert.Contains(t, body, `medrec_backups_total{result="ok",trigger="manual"} 1`)
	assert.Contains(t, body, "medrec_patients 1")
}

func TestReports(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})
	for i, age := range []int{10, 35, 70} {
		p := db.Patient{RecordNumber: db.FormatRecordNumber(2025, int64(i+1)), Name: "P", Age: age, PhoneNumber: "1"}
		_, err := ts.db.CreatePatient(p)
		require.NoError(t, err)
	}

	t.Run("summary", func(t *testing.T) {
		rec := testutil.Serve(ts.mux, http.MethodGet, "/api/reports/summary", "")
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var sum report.Summary
		testutil.DecodeJSON(t, rec, &sum)
		assert.Equal(t, 3, sum.Total)
		assert.InDelta(t, 38.333, sum.AgeMean, 0.001)
		require.Len(t, sum.Registrations, 1)
		assert.Equal(t, 3, sum.Registrations[0].Count)
	})

	t.Run("ages html", func(t *testing.T) {
		rec := testutil.Serve(ts.mux, http.MethodGet, "/api/reports/ages.html", "")
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "Patients by age")
	})

	t.Run("registrations png", func(t *testing.T) {
		rec := testutil.Serve(ts.mux, http.MethodGet, "/api/reports/registrations.png", "")
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := testutil.Serve(ts.mux, http.MethodPost, "/api/reports/summary", "")
		testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	})
}

func TestReportsFailWhenStoreClosed(t *testing.T) {
	ts := setupTestServer(t, platform.Desktop{})
	require.NoError(t, ts.db.Close())

	rec := testutil.Serve(ts.mux, http.MethodGet, "/api/reports/summary", "")
	testutil.AssertJSONError(t, rec, http.StatusInternalServerError, "io-failure")
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(httputil.RequestIDHeader))
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))
	assert.Len(t, lines, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(httputil.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(httputil.RequestIDHeader))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}
