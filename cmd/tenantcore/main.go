// Command tenantcore boots the entity platform engine over the configured
// blob backend and serves the operational HTTP endpoints: liveness, metrics,
// and a manual read-model rebuild trigger.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tenantcore/internal/appconfig"
	"tenantcore/internal/blob"
	"tenantcore/internal/config"
	"tenantcore/internal/entitystore"
	"tenantcore/internal/lifecycle"
	"tenantcore/internal/materialize"
	"tenantcore/internal/obs"
	"tenantcore/internal/schema"
	"tenantcore/internal/service"
	"tenantcore/pkg/domain"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("tenantcore exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	log.Info("blob store ready", zap.String("driver", string(blobs.Driver())))

	obs.Init()
	store := entitystore.New(blobs, schema.NewValidator(), lifecycle.NewTable())
	appCfg := appconfig.New(blobs)
	mat := materialize.New(store, appCfg, log.Named("materialize"))
	svc := service.New(store, appCfg, mat, log.Named("service"))

	if _, err := appCfg.Load(ctx); err != nil {
		return err
	}
	// Operational endpoints act with platform privilege; caller auth belongs
	// to the fronting API layer, which is out of process.
	system := domain.Caller{UserID: "system", Role: domain.RoleSuperadmin}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/admin/rebuild", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := svc.Rebuild(r.Context(), system); err != nil {
			log.Error("manual rebuild failed", zap.Error(err))
			http.Error(w, "rebuild failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
