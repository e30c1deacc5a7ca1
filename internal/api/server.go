// Package api serves the frontend's JSON HTTP interface: named command
// invocation, store status, backups and reports.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/commands"
	"github.com/germanygsg/taurimedrec/internal/db"
	"github.com/germanygsg/taurimedrec/internal/httputil"
	"github.com/germanygsg/taurimedrec/internal/metrics"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
	"github.com/germanygsg/taurimedrec/internal/report"
	"github.com/germanygsg/taurimedrec/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxInvokeBody caps the JSON arguments of one command.
const maxInvokeBody = 1 << 20

var logf = monitoring.Prefixed("api")

type Server struct {
	handler   *commands.Handler
	db        *db.DB
	backupDir string
	metrics   *metrics.Metrics
}

func NewServer(h *commands.Handler, store *db.DB, backupDir string) *Server {
	return &Server{
		handler:   h,
		db:        store,
		backupDir: backupDir,
	}
}

// WithMetrics mounts m's exposition handler at /metrics and counts manual
// backups. It returns s.
func (s *Server) WithMetrics(m *metrics.Metrics) *Server {
	s.metrics = m
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, URI, status, duration and the request id.
// A caller-supplied X-Request-Id is kept; otherwise a new one is assigned and
// echoed in the response.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(httputil.RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
			r.Header.Set(httputil.RequestIDHeader, reqID)
		}
		w.Header().Set(httputil.RequestIDHeader, reqID)

		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms id=%s",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
			reqID,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/invoke/", s.invokeHandler)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/backup", s.createBackup)
	mux.HandleFunc("/api/backups", s.listBackups)
	mux.HandleFunc("/api/backups/", s.downloadBackup)
	mux.HandleFunc("/api/reports/summary", s.showSummary)
	mux.HandleFunc("/api/reports/ages.html", s.showAgeChart)
	mux.HandleFunc("/api/reports/registrations.png", s.showRegistrationsPlot)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// invokeHandler runs POST /api/invoke/<command> with the request body as the
// command's JSON arguments.
func (s *Server) invokeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/invoke/")
	if name == "" || strings.Contains(name, "/") {
		httputil.NotFound(w, fmt.Sprintf("unknown command %q", name))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvokeBody+1))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	if len(body) > maxInvokeBody {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, err := s.handler.Invoke(name, json.RawMessage(body))
	if err != nil {
		if !apperr.Is(err, apperr.KindInvalidArgument) {
			logf("%s failed: %v", name, err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, result)
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, commands.Names())
}

// Status describes the running instance.
type Status struct {
	Version       string `json:"version"`
	Platform      string `json:"platform"`
	Driver        string `json:"driver"`
	DBPath        string `json:"db_path"`
	InMemory      bool   `json:"in_memory"`
	SchemaVersion uint   `json:"schema_version"`
	Patients      int64  `json:"patients"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	st := Status{
		Version:  version.Version,
		Platform: s.handler.Platform().Name(),
		Driver:   s.db.Driver(),
		DBPath:   s.db.Path(),
		InMemory: s.db.InMemory(),
	}

	schemaVersion, _, err := s.db.SchemaVersion()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	st.SchemaVersion = schemaVersion

	// A fallback store whose schema failed still reports status.
	if count, err := s.db.CountPatients(); err == nil {
		st.Patients = count
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) createBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	path, err := s.db.Backup(s.backupDir)
	s.metrics.ObserveBackup(metrics.TriggerManual, err)
	if err != nil {
		logf("backup failed: %v", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"path": path})
}

func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	backups, err := s.db.ListBackups(s.backupDir)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, backups)
}

// downloadBackup serves GET /api/backups/<name>.
func (s *Server) downloadBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/backups/")
	path, err := s.db.BackupPath(s.backupDir, name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(path)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) (report.Summary, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return report.Summary{}, false
	}
	patients, err := s.handler.GetPatients()
	if err != nil {
		httputil.WriteError(w, err)
		return report.Summary{}, false
	}
	return report.Summarize(patients), true
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, sum)
}

func (s *Server) showAgeChart(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.AgeChartHTML(&buf, sum); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showRegistrationsPlot(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.RegistrationsPNG(&buf, sum); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
