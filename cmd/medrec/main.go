package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/germanygsg/taurimedrec/internal/api"
	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/commands"
	"github.com/germanygsg/taurimedrec/internal/config"
	"github.com/germanygsg/taurimedrec/internal/db"
	"github.com/germanygsg/taurimedrec/internal/httputil"
	"github.com/germanygsg/taurimedrec/internal/metrics"
	"github.com/germanygsg/taurimedrec/internal/platform"
	"github.com/germanygsg/taurimedrec/internal/rpc"
	"github.com/germanygsg/taurimedrec/internal/scheduler"
	"github.com/germanygsg/taurimedrec/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to JSON or YAML config file (optional)")
	dbPath      = flag.String("db", "", "Path to the patients database (default: chosen by platform)")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address (empty disables gRPC)")
	platformArg = flag.String("platform", "", "Platform override: android or desktop (default: detect)")
	driver      = flag.String("driver", config.DriverModernc, "database/sql driver: sqlite or sqlite3 (cgo)")
	backupDir   = flag.String("backup-dir", "backups", "Directory for database backups")
	backupCron  = flag.String("backup-schedule", "", "Cron expression for automatic backups, e.g. \"0 3 * * *\" (empty disables)")
	backupKeep  = flag.Int("backup-keep", config.DefaultBackupKeep, "Number of scheduled backups to retain")
	devMode     = flag.Bool("dev", false, "Use a throwaway in-memory database")
	showVersion = flag.Bool("version", false, "Print version and exit")

	callCommand = flag.String("call", "", "Invoke a command on a running server and print the result")
	callArgs    = flag.String("args", "{}", "JSON arguments for -call")
	callServer  = flag.String("server", "http://127.0.0.1:8080", "Server for -call: http://host:port or grpc://host:port")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *callCommand != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, err := newInvoker(*callServer)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := callAndClose(ctx, client, *callCommand, *callArgs, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", *callCommand, err)
			os.Exit(1)
		}
		return
	}

	cfg := config.EmptyConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	applyFlags(cfg, setFlags(flag.CommandLine))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags copies explicitly set flags over the config file values.
func applyFlags(cfg *config.AppConfig, set map[string]bool) {
	if set["db"] {
		cfg.DBPath = dbPath
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["grpc-listen"] {
		cfg.GRPCListen = grpcListen
	}
	if set["platform"] {
		cfg.Platform = platformArg
	}
	if set["driver"] {
		cfg.Driver = driver
	}
	if set["backup-dir"] {
		cfg.BackupDir = backupDir
	}
	if set["backup-schedule"] {
		cfg.BackupSchedule = backupCron
	}
	if set["backup-keep"] {
		cfg.BackupKeep = backupKeep
	}
	if set["dev"] {
		cfg.DevMode = devMode
	}
}

// storePath picks the database location: dev mode is always in memory, an
// explicit path wins, and otherwise the platform decides.
func storePath(cfg *config.AppConfig, p platform.Provider) string {
	if cfg.GetDevMode() {
		return db.MemoryPath
	}
	if path := cfg.GetDBPath(); path != "" {
		return path
	}
	return p.DatabasePath()
}

func run(cfg *config.AppConfig) error {
	log.Printf("Starting %s", version.String())

	provider, err := platform.Detect(cfg.GetPlatform())
	if err != nil {
		return fmt.Errorf("failed to select platform: %w", err)
	}
	log.Printf("Platform: %s", provider.Name())

	store, err := db.Initialize(cfg.GetDriver(), storePath(cfg, provider))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	m := metrics.New(nil)
	m.RegisterPatientGauge(store.CountPatients)
	handler := commands.NewHandler(store, provider).WithObserver(m)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backups := scheduler.NewBackupScheduler(store, cfg.GetBackupDir(), cfg.GetBackupKeep(), m)
	if err := backups.Start(ctx, cfg.GetBackupSchedule()); err != nil {
		return err
	}
	defer backups.Stop()
	if next := backups.NextRun(); next != nil {
		log.Printf("Next scheduled backup at %s", next.Format(time.RFC3339))
	}

	mux := api.NewServer(handler, store, cfg.GetBackupDir()).WithMetrics(m).ServeMux()
	if err := store.AttachAdminRoutes(mux, cfg.GetBackupDir()); err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           api.LoggingMiddleware(m.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("HTTP server: %w", err)
			stop()
		}
	}()

	var grpcServer *rpc.Server
	if addr := cfg.GetGRPCListen(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			stop()
			_ = server.Close()
			wg.Wait()
			return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
		}
		if grpcServer, err = rpc.NewServer(handler); err != nil {
			stop()
			_ = server.Close()
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("gRPC server listening on %s", lis.Addr())
			if err := grpcServer.Serve(lis); err != nil {
				errc <- fmt.Errorf("gRPC server: %w", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop(shutdownCtx)
	}

	wg.Wait()
	close(errc)
	if err := <-errc; err != nil {
		return err
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

// invoker is satisfied by httputil.InvokeClient and rpc.Client.
type invoker interface {
	Invoke(ctx context.Context, command string, args interface{}) (json.RawMessage, error)
	Close() error
}

// callAndClose runs one command through c and then closes it.
func callAndClose(ctx context.Context, c invoker, command, args string, w io.Writer) error {
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("failed to close client: %v", err)
		}
	}()
	return runCall(ctx, c, command, args, w)
}

// newInvoker returns a gRPC client for grpc:// servers and an HTTP client
// for everything else.
func newInvoker(server string) (invoker, error) {
	if target, ok := strings.CutPrefix(server, "grpc://"); ok {
		return rpc.Dial(target)
	}
	return httputil.NewInvokeClient(strings.TrimRight(server, "/")+"/api", nil), nil
}

// runCall invokes one command and pretty-prints its JSON result to w.
func runCall(ctx context.Context, c invoker, command, args string, w io.Writer) error {
	if !json.Valid([]byte(args)) {
		return apperr.New(apperr.KindInvalidArgument, "-args is not valid JSON: %s", args)
	}
	result, err := c.Invoke(ctx, command, json.RawMessage(args))
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.Unmarshal(result, &v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
