// Package platform selects the host-specific capabilities once at startup:
// where the patient store lives and whether invoices can be printed.
//
// The rest of the process calls the Provider unconditionally; no other
// package branches on the operating system.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/config"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
)

const (
	// DefaultDatabaseFile is the store filename used when no directory applies.
	DefaultDatabaseFile = "patients.db"

	// PrintCommandPrefix marks a print_invoice result that the frontend must
	// forward to the native print service as "PRINT:<job name>:<text>".
	PrintCommandPrefix = "PRINT:"

	// DefaultJobName is used when print_invoice is called without a job name.
	DefaultJobName = "Invoice"
)

var logf = monitoring.Prefixed("platform")

// Provider is the set of host capabilities the core depends on.
type Provider interface {
	// Name identifies the provider in logs and status output.
	Name() string
	// DatabasePath returns the location of the persistent store.
	DatabasePath() string
	// PrintInvoice hands text to the host print facility. jobName may be nil.
	PrintInvoice(text string, jobName *string) (string, error)
}

// Android stores data under the app's home directory and delegates printing
// to the frontend's native bridge.
type Android struct {
	// Home is the app data directory, normally $HOME. Empty means unknown.
	Home string
}

// Name implements Provider.
func (Android) Name() string { return config.PlatformAndroid }

// DatabasePath implements Provider.
func (a Android) DatabasePath() string {
	if a.Home == "" {
		logf("HOME not set, using default %s", DefaultDatabaseFile)
		return DefaultDatabaseFile
	}
	path := filepath.Join(a.Home, DefaultDatabaseFile)
	logf("Using Android database path: %s", path)
	return path
}

// PrintInvoice implements Provider. It does not print; it returns the
// command string the frontend forwards to the print service.
func (Android) PrintInvoice(text string, jobName *string) (string, error) {
	name := DefaultJobName
	if jobName != nil {
		name = *jobName
	}
	return fmt.Sprintf("%s%s:%s", PrintCommandPrefix, name, text), nil
}

// Desktop keeps the store next to the working directory and has no print
// integration.
type Desktop struct{}

// Name implements Provider.
func (Desktop) Name() string { return config.PlatformDesktop }

// DatabasePath implements Provider.
func (Desktop) DatabasePath() string { return DefaultDatabaseFile }

// PrintInvoice implements Provider and always fails with KindUnsupported.
func (Desktop) PrintInvoice(string, *string) (string, error) {
	return "", apperr.New(apperr.KindUnsupported, "Printing only available on Android")
}

// Select returns the provider for an explicit override ("android",
// "desktop") or, when override is empty, for the given GOOS.
func Select(override, goos string, getenv func(string) string) (Provider, error) {
	switch override {
	case config.PlatformAndroid:
		return Android{Home: getenv("HOME")}, nil
	case config.PlatformDesktop:
		return Desktop{}, nil
	case config.PlatformAuto:
		if goos == "android" {
			return Android{Home: getenv("HOME")}, nil
		}
		return Desktop{}, nil
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "unknown platform %q", override)
	}
}

// Detect selects the provider for the running process.
func Detect(override string) (Provider, error) {
	return Select(override, runtime.GOOS, os.Getenv)
}
