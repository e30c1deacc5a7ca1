package db

import (
	"fmt"
	"time"
)

// RecordNumberPrefix starts every generated record number.
const RecordNumberPrefix = "PT"

// Patient is a single intake record.
//
// ID is nil until the store assigns one. RecordNumber and CreatedAt are
// never changed by UpdatePatient.
type Patient struct {
	ID               *int64     `json:"id"`
	RecordNumber     string     `json:"record_number"`
	Name             string     `json:"name"`
	Age              int        `json:"age"`
	Address          *string    `json:"address"`
	PhoneNumber      string     `json:"phone_number"`
	InitialDiagnosis *string    `json:"initial_diagnosis"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

const patientColumns = `id, record_number, name, age, address, phone_number, initial_diagnosis, created_at`

// FormatRecordNumber renders the identifier for the seq'th patient registered
// in year. The year is zero-padded to six digits, so 2025 becomes "002025".
func FormatRecordNumber(year int, seq int64) string {
	return fmt.Sprintf("%s%06d%06d", RecordNumberPrefix, year, seq)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (Patient, error) {
	var (
		p         Patient
		id        int64
		createdAt interface{}
	)
	if err := row.Scan(
		&id,
		&p.RecordNumber,
		&p.Name,
		&p.Age,
		&p.Address,
		&p.PhoneNumber,
		&p.InitialDiagnosis,
		&createdAt,
	); err != nil {
		return Patient{}, err
	}
	p.ID = &id

	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return Patient{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	p.CreatedAt = ts
	return p, nil
}

// ListPatients returns every patient, newest id first. An empty store yields
// an empty, non-nil slice.
func (db *DB) ListPatients() ([]Patient, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.db.Query(`SELECT ` + patientColumns + ` FROM patients ORDER BY id DESC`)
	if err != nil {
		return nil, classify(err, "failed to list patients")
	}
	defer rows.Close()

	patients := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, classify(err, "failed to scan patient")
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list patients")
	}
	return patients, nil
}

// GetPatient returns the patient with the given id.
func (db *DB) GetPatient(id int64) (*Patient, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.db.QueryRow(`SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to get patient %d", id))
	}
	return &p, nil
}

// CreatePatient inserts p and returns the id the store assigned. p.ID and
// p.CreatedAt are ignored. A duplicate record number fails with
// apperr.KindConstraint and leaves the existing row untouched.
func (db *DB) CreatePatient(p Patient) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.db.Exec(`
		INSERT INTO patients (
			record_number, name, age, address, phone_number, initial_diagnosis
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		p.RecordNumber,
		p.Name,
		p.Age,
		p.Address,
		p.PhoneNumber,
		p.InitialDiagnosis,
	)
	if err != nil {
		return 0, classify(err, "failed to create patient")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, classify(err, "failed to get last insert ID")
	}
	return id, nil
}

// UpdatePatient overwrites the mutable fields of the patient with the given
// id. p.RecordNumber is ignored. No matching row is not an error.
func (db *DB) UpdatePatient(id int64, p Patient) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.db.Exec(`
		UPDATE patients
		SET name = ?, age = ?, address = ?, phone_number = ?, initial_diagnosis = ?
		WHERE id = ?
	`,
		p.Name,
		p.Age,
		p.Address,
		p.PhoneNumber,
		p.InitialDiagnosis,
		id,
	)
	if err != nil {
		return classify(err, "failed to update patient")
	}
	return nil
}

// DeletePatient removes the patient with the given id. No matching row is
// not an error.
func (db *DB) DeletePatient(id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.db.Exec(`DELETE FROM patients WHERE id = ?`, id); err != nil {
		return classify(err, "failed to delete patient")
	}
	return nil
}

// CountPatients returns the number of stored patients.
func (db *DB) CountPatients() (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.countLocked()
}

func (db *DB) countLocked() (int64, error) {
	var count int64
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM patients`).Scan(&count); err != nil {
		return 0, classify(err, "failed to count patients")
	}
	return count, nil
}

// GenerateRecordNumber proposes the next record number from the current row
// count and the clock's year. Nothing is reserved: two callers may receive
// the same number, and the second insert then fails on the unique
// constraint. Callers regenerate and retry.
func (db *DB) GenerateRecordNumber() (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	count, err := db.countLocked()
	if err != nil {
		return "", err
	}
	return FormatRecordNumber(db.clock.Now().UTC().Year(), count+1), nil
}
