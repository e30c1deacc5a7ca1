// Package commands is the named-operation surface the frontend invokes:
// get_patients, add_patient, update_patient, delete_patient,
// generate_record_number and print_invoice, plus get_patient.
//
// The HTTP and gRPC transports both dispatch through Handler.Invoke, so
// argument decoding and confirmation text live in one place.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/db"
	"github.com/germanygsg/taurimedrec/internal/platform"
)

// Command names.
const (
	GetPatients          = "get_patients"
	GetPatient           = "get_patient"
	AddPatient           = "add_patient"
	UpdatePatient        = "update_patient"
	DeletePatient        = "delete_patient"
	GenerateRecordNumber = "generate_record_number"
	PrintInvoice         = "print_invoice"
)

// Confirmation strings returned by the mutating commands.
const (
	MsgAdded   = "Patient added successfully"
	MsgUpdated = "Patient updated successfully"
	MsgDeleted = "Patient deleted successfully"
)

// Repository is the store the commands run against. *db.DB satisfies it.
type Repository interface {
	ListPatients() ([]db.Patient, error)
	GetPatient(id int64) (*db.Patient, error)
	CreatePatient(p db.Patient) (int64, error)
	UpdatePatient(id int64, p db.Patient) error
	DeletePatient(id int64) error
	GenerateRecordNumber() (string, error)
}

// Observer is told the outcome of every Invoke.
type Observer interface {
	ObserveCommand(name string, err error)
}

// Handler binds the commands to a store and a platform.
type Handler struct {
	repo     Repository
	platform platform.Provider
	observer Observer
}

// NewHandler returns a Handler.
func NewHandler(repo Repository, p platform.Provider) *Handler {
	return &Handler{repo: repo, platform: p}
}

// WithObserver sets the observer notified after each Invoke and returns h.
func (h *Handler) WithObserver(o Observer) *Handler {
	h.observer = o
	return h
}

// Platform returns the capability provider the handler was built with.
func (h *Handler) Platform() platform.Provider { return h.platform }

func (h *Handler) GetPatients() ([]db.Patient, error) {
	return h.repo.ListPatients()
}

func (h *Handler) GetPatient(id int64) (*db.Patient, error) {
	return h.repo.GetPatient(id)
}

func (h *Handler) AddPatient(p db.Patient) (string, error) {
	if _, err := h.repo.CreatePatient(p); err != nil {
		return "", err
	}
	return MsgAdded, nil
}

func (h *Handler) UpdatePatient(id int64, p db.Patient) (string, error) {
	if err := h.repo.UpdatePatient(id, p); err != nil {
		return "", err
	}
	return MsgUpdated, nil
}

func (h *Handler) DeletePatient(id int64) (string, error) {
	if err := h.repo.DeletePatient(id); err != nil {
		return "", err
	}
	return MsgDeleted, nil
}

func (h *Handler) GenerateRecordNumber() (string, error) {
	return h.repo.GenerateRecordNumber()
}

// PrintInvoice hands text to the platform's print channel. A nil jobName
// uses platform.DefaultJobName.
func (h *Handler) PrintInvoice(text string, jobName *string) (string, error) {
	return h.platform.PrintInvoice(text, jobName)
}

type idArgs struct {
	ID *int64 `json:"id"`
}

type patientArgs struct {
	Patient *patientInput `json:"patient"`
}

type updateArgs struct {
	ID      *int64        `json:"id"`
	Patient *patientInput `json:"patient"`
}

// patientInput is the wire form of a patient. Required fields are pointers
// so that a missing key or an explicit null is rejected instead of being
// stored as a zero value.
type patientInput struct {
	ID               *int64  `json:"id"`
	RecordNumber     *string `json:"record_number"`
	Name             *string `json:"name"`
	Age              *int    `json:"age"`
	Address          *string `json:"address"`
	PhoneNumber      *string `json:"phone_number"`
	InitialDiagnosis *string `json:"initial_diagnosis"`
}

func (in *patientInput) toPatient(command string) (db.Patient, error) {
	switch {
	case in.RecordNumber == nil:
		return db.Patient{}, missingArg(command, "patient.record_number")
	case in.Name == nil:
		return db.Patient{}, missingArg(command, "patient.name")
	case in.Age == nil:
		return db.Patient{}, missingArg(command, "patient.age")
	case in.PhoneNumber == nil:
		return db.Patient{}, missingArg(command, "patient.phone_number")
	}
	return db.Patient{
		ID:               in.ID,
		RecordNumber:     *in.RecordNumber,
		Name:             *in.Name,
		Age:              *in.Age,
		Address:          in.Address,
		PhoneNumber:      *in.PhoneNumber,
		InitialDiagnosis: in.InitialDiagnosis,
	}, nil
}

type printArgs struct {
	Text    *string `json:"text"`
	JobName *string `json:"job_name"`
	// Webview bridges camel-case argument names by default.
	JobNameCamel *string `json:"jobName"`
}

// Names lists every command Invoke accepts, sorted.
func Names() []string {
	names := []string{
		GetPatients, GetPatient, AddPatient, UpdatePatient,
		DeletePatient, GenerateRecordNumber, PrintInvoice,
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command with JSON-encoded arguments and returns its
// result ready for JSON encoding. Empty args are treated as {}.
func (h *Handler) Invoke(name string, args json.RawMessage) (interface{}, error) {
	result, err := h.dispatch(name, args)
	if h.observer != nil {
		h.observer.ObserveCommand(name, err)
	}
	return result, err
}

func (h *Handler) dispatch(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case GetPatients:
		return h.GetPatients()

	case GetPatient:
		var a idArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if a.ID == nil {
			return nil, missingArg(name, "id")
		}
		return h.GetPatient(*a.ID)

	case AddPatient:
		var a patientArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if a.Patient == nil {
			return nil, missingArg(name, "patient")
		}
		p, err := a.Patient.toPatient(name)
		if err != nil {
			return nil, err
		}
		return h.AddPatient(p)

	case UpdatePatient:
		var a updateArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if a.ID == nil {
			return nil, missingArg(name, "id")
		}
		if a.Patient == nil {
			return nil, missingArg(name, "patient")
		}
		p, err := a.Patient.toPatient(name)
		if err != nil {
			return nil, err
		}
		return h.UpdatePatient(*a.ID, p)

	case DeletePatient:
		var a idArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if a.ID == nil {
			return nil, missingArg(name, "id")
		}
		return h.DeletePatient(*a.ID)

	case GenerateRecordNumber:
		return h.GenerateRecordNumber()

	case PrintInvoice:
		var a printArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return nil, err
		}
		if a.Text == nil {
			return nil, missingArg(name, "text")
		}
		jobName := a.JobName
		if jobName == nil {
			jobName = a.JobNameCamel
		}
		return h.PrintInvoice(*a.Text, jobName)

	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "unknown command %q", name)
	}
}

func decodeArgs(name string, args json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, err, fmt.Sprintf("invalid arguments for %s", name))
	}
	return nil
}

func missingArg(name, arg string) error {
	return apperr.New(apperr.KindInvalidArgument, "%s: missing argument %q", name, arg)
}
