package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// TableStats is the row count of one user table.
type TableStats struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// DatabaseStats summarises the store for the debug page.
type DatabaseStats struct {
	Path        string       `json:"path"`
	InMemory    bool         `json:"in_memory"`
	PageCount   int64        `json:"page_count"`
	PageSize    int64        `json:"page_size"`
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// Stats reads page and row counts for every user table.
func (db *DB) Stats() (*DatabaseStats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stats := &DatabaseStats{Path: db.path, InMemory: db.InMemory(), Tables: []TableStats{}}
	if err := db.db.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, classify(err, "failed to read page_count")
	}
	if err := db.db.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, classify(err, "failed to read page_size")
	}
	stats.TotalSizeMB = float64(stats.PageCount*stats.PageSize) / (1024 * 1024)

	rows, err := db.db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, classify(err, "failed to list tables")
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, classify(err, "failed to scan table name")
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list tables")
	}

	for _, name := range names {
		var count int64
		// Names come from sqlite_master, quoted as identifiers.
		q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, name)
		if err := db.db.QueryRow(q).Scan(&count); err != nil {
			return nil, classify(err, fmt.Sprintf("failed to count %s", name))
		}
		stats.Tables = append(stats.Tables, TableStats{Name: name, RowCount: count})
	}
	return stats, nil
}

// AttachAdminRoutes mounts the debug pages under /debug/: a live SQL console,
// store statistics and an on-demand gzip backup download. tsweb restricts
// them to loopback and tailnet callers.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, backupDir string) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.db, &tailsql.DBOptions{
		Label: "Patients DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Table row counts and database size", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.Stats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to read stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logf("Failed to encode stats: %v", err)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath, err := db.Backup(backupDir)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := db.fs.Remove(backupPath); err != nil {
				logf("Failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			logf("Failed to write backup file: %v", err)
		}
	}))
	return nil
}
