package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/leozw/zoom-dashboard/internal/archive"
	"github.com/leozw/zoom-dashboard/internal/config"
	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/identity"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/storage/broker"
	"github.com/leozw/zoom-dashboard/internal/storage/postgres"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"github.com/leozw/zoom-dashboard/pkg/keycloak"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds what every command needs: configuration, logger, metrics and the
// archive mirrors opened on demand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	mirrors []archive.Mirror
	streams []*archive.Stream
}

// bindFlags maps command flags onto configuration keys. Binding happens per
// invocation because several commands share keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var logger *zap.Logger
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(cfg.Mimir),
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-quit:
			a.logger.Info("Shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(quit)
	}()

	return ctx, cancel
}

// startMetrics pushes metrics until the returned stop function is called,
// which waits for the final push.
func (a *app) startMetrics(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.metrics.StartRemoteWrite(ctx, a.logger)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *app) zoom() (*zoom.Client, error) {
	for field, value := range map[string]string{
		"zoom.apikey":    a.cfg.Zoom.APIKey,
		"zoom.apisecret": a.cfg.Zoom.APISecret,
	} {
		if err := gateway.Require(field, value); err != nil {
			return nil, err
		}
	}
	return zoom.NewClient(a.cfg.Zoom, a.logger, zoom.WithMetrics(a.metrics)), nil
}

func (a *app) identity(ctx context.Context) (*identity.Client, error) {
	for field, value := range map[string]string{
		"identity.baseurl":      a.cfg.Identity.BaseURL,
		"keycloak.url":          a.cfg.Keycloak.URL,
		"keycloak.clientid":     a.cfg.Keycloak.ClientID,
		"keycloak.clientsecret": a.cfg.Keycloak.ClientSecret,
	} {
		if err := gateway.Require(field, value); err != nil {
			return nil, err
		}
	}
	kc := keycloak.NewClient(a.cfg.Keycloak, a.logger)
	hc := kc.HTTPClient(ctx, a.cfg.Identity.Timeout)
	return identity.NewClient(a.cfg.Identity.BaseURL, hc, a.cfg.Identity.CacheTTL, a.logger, a.metrics), nil
}

// openMirrors connects the optional Postgres and NATS mirrors. A mirror that
// cannot be reached is logged and left out.
func (a *app) openMirrors() {
	if a.cfg.Database.URL != "" {
		db, err := postgres.NewConnection(a.cfg.Database)
		if err == nil {
			err = db.Migrate()
			if err != nil {
				db.Close()
			}
		}
		if err != nil {
			a.logger.Warn("Postgres mirror disabled", zap.Error(err))
		} else {
			a.mirrors = append(a.mirrors, db)
		}
	}

	if a.cfg.NATS.URL != "" {
		pub, err := broker.Connect(a.cfg.NATS.URL, a.cfg.NATS.SubjectPrefix, a.logger)
		if err != nil {
			a.logger.Warn("NATS mirror disabled", zap.Error(err))
		} else {
			a.mirrors = append(a.mirrors, pub)
		}
	}
}

func (a *app) openStream(name string) (*archive.Stream, error) {
	s, err := archive.Open(name, archive.Options{
		Dir:        a.cfg.Archive.Dir,
		MaxBackups: a.cfg.Archive.MaxBackups,
		MaxSizeMB:  a.cfg.Archive.MaxSizeMB,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}, a.mirrors...)
	if err != nil {
		return nil, err
	}
	a.streams = append(a.streams, s)
	return s, nil
}

func (a *app) close() {
	for _, s := range a.streams {
		if err := s.Close(); err != nil {
			a.logger.Warn("Failed to close archive stream", zap.String("stream", s.Name()), zap.Error(err))
		}
	}
	for _, m := range a.mirrors {
		if err := m.Close(); err != nil {
			a.logger.Warn("Failed to close mirror", zap.String("mirror", m.Name()), zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
