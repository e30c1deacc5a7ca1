package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanygsg/taurimedrec/internal/api"
	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/commands"
	"github.com/germanygsg/taurimedrec/internal/config"
	"github.com/germanygsg/taurimedrec/internal/db"
	"github.com/germanygsg/taurimedrec/internal/httputil"
	"github.com/germanygsg/taurimedrec/internal/monitoring"
	"github.com/germanygsg/taurimedrec/internal/platform"
	"github.com/germanygsg/taurimedrec/internal/rpc"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "", *grpcListen)
	assert.Equal(t, "sqlite", *driver)
	assert.Equal(t, "backups", *backupDir)
	assert.False(t, *devMode)
	assert.Equal(t, "", *backupCron)
	assert.Equal(t, config.DefaultBackupKeep, *backupKeep)
	assert.Equal(t, "{}", *callArgs)
}

func TestSetFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("listen", ":8080", "")
	require.NoError(t, fs.Parse([]string{"-db", "x.db"}))

	assert.Equal(t, map[string]bool{"db": true}, setFlags(fs))
}

func TestApplyFlagsOverridesFile(t *testing.T) {
	fileListen := ":9000"
	fileDriver := "sqlite3"
	cfg := &config.AppConfig{Listen: &fileListen, Driver: &fileDriver}

	applyFlags(cfg, map[string]bool{"listen": true})

	assert.Equal(t, *listen, cfg.GetListen())
	assert.Equal(t, "sqlite3", cfg.GetDriver(), "unset flag must not override the file")
}

func TestApplyFlagsBackupSettings(t *testing.T) {
	fileSchedule := "0 3 * * *"
	cfg := &config.AppConfig{BackupSchedule: &fileSchedule}

	applyFlags(cfg, map[string]bool{"backup-keep": true})

	assert.Equal(t, "0 3 * * *", cfg.GetBackupSchedule())
	assert.Equal(t, *backupKeep, cfg.GetBackupKeep())

	applyFlags(cfg, map[string]bool{"backup-schedule": true})
	assert.Equal(t, *backupCron, cfg.GetBackupSchedule())
}

func TestStorePath(t *testing.T) {
	dev := true
	explicit := "/srv/medrec/patients.db"

	tests := []struct {
		name string
		cfg  *config.AppConfig
		p    platform.Provider
		want string
	}{
		{"platform default desktop", config.EmptyConfig(), platform.Desktop{}, "patients.db"},
		{"platform default android", config.EmptyConfig(), platform.Android{Home: "/data/app"}, filepath.Join("/data/app", "patients.db")},
		{"explicit path", &config.AppConfig{DBPath: &explicit}, platform.Android{Home: "/data/app"}, explicit},
		{"dev mode", &config.AppConfig{DBPath: &explicit, DevMode: &dev}, platform.Desktop{}, db.MemoryPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storePath(tt.cfg, tt.p))
		})
	}
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "patients.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := commands.NewHandler(store, platform.Desktop{})
	srv := httptest.NewServer(api.NewServer(h, store, t.TempDir()).ServeMux())
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCall(t *testing.T) {
	srv := newTestAPI(t)
	client, err := newInvoker(srv.URL + "/")
	require.NoError(t, err)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runCall(ctx, client, "generate_record_number", "{}", &out))
	var rn string
	require.NoError(t, json.Unmarshal(out.Bytes(), &rn))
	assert.Len(t, rn, 14)

	out.Reset()
	args := `{"patient":{"record_number":"` + rn + `","name":"Cli","age":5,"phone_number":"1"}}`
	require.NoError(t, runCall(ctx, client, "add_patient", args, &out))
	assert.Equal(t, "\"Patient added successfully\"\n", out.String())

	out.Reset()
	err = runCall(ctx, client, "print_invoice", `{"text":"x"}`, &out)
	assert.True(t, apperr.Is(err, apperr.KindUnsupported), "%v", err)
	assert.Empty(t, out.String())
}

func TestRunCallInvalidArgs(t *testing.T) {
	err := runCall(context.Background(), httputil.NewInvokeClient("http://unused", nil), "get_patients", "{", &bytes.Buffer{})
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
}

type closeCountingInvoker struct {
	invoker
	closes int
}

func (c *closeCountingInvoker) Close() error {
	c.closes++
	return c.invoker.Close()
}

func TestCallAndCloseClosesClient(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `"PT002025000001"`)
	c := &closeCountingInvoker{invoker: httputil.NewInvokeClient("http://unused/api", mock)}

	var out bytes.Buffer
	require.NoError(t, callAndClose(context.Background(), c, "generate_record_number", "{}", &out))
	assert.Equal(t, 1, c.closes)

	err := callAndClose(context.Background(), c, "get_patients", "{", &out)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))
	assert.Equal(t, 2, c.closes, "client is closed on failure too")
}

func TestNewInvoker(t *testing.T) {
	c, err := newInvoker("http://127.0.0.1:8080")
	require.NoError(t, err)
	hc, ok := c.(*httputil.InvokeClient)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8080/api", hc.BaseURL)

	c, err = newInvoker("grpc://127.0.0.1:9090")
	require.NoError(t, err)
	gc, ok := c.(*rpc.Client)
	require.True(t, ok)
	assert.NoError(t, gc.Close())
}
