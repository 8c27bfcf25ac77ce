package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"biomark/adapters/predictor/dualbranch"
	"biomark/adapters/predictor/random"
	"biomark/adapters/predictor/remote"
	"biomark/adapters/rng"
	"biomark/app"
	"biomark/domain/core"
	"biomark/internal"
	"biomark/internal/config"
	"biomark/internal/errors"
	"biomark/internal/imaging"
	"biomark/internal/ops"
	"biomark/internal/session"
	"biomark/ports"
	"biomark/ui"
	"biomark/ui/middleware"
)

// Version is reported by the ops health endpoint
var Version = "dev"

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	RNG      *rng.Source
	Sessions *session.MemoryStore

	// Domain services
	Predictor ports.Predictor
	Analysis  *app.AnalysisService

	// Presentation
	Server *ui.Server
	Ops    http.Handler

	started time.Time
}

// New creates a new dependency injection container and wires every component
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.ConfigInvalid("config cannot be nil")
	}

	c := &Container{
		Config:  cfg,
		Logger:  internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)),
		started: time.Now(),
	}

	c.RNG = rng.NewSource(cfg.Model.Seed)
	c.Sessions = session.NewMemoryStore(cfg.Session.MaxEvents)

	predictor, err := NewPredictor(cfg.Model, c.RNG, c.Logger)
	if err != nil {
		return nil, err
	}
	c.Predictor = predictor

	c.Analysis = app.NewAnalysisService(predictor, c.RNG, c.Logger, app.AnalysisOptions{
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		MaxUploadPixels:  cfg.Upload.MaxPixels,
		SimulatedLatency: cfg.Model.SimulatedLatency,
		PDFMaxPages:      cfg.Report.PDFMaxPages,
		Heatmap:          imaging.DefaultHeatmapOptions(),
	})

	c.Server, err = ui.NewServer(ui.Options{
		Title:          cfg.UI.Title,
		Icon:           cfg.UI.Icon,
		GinMode:        cfg.Server.GinMode,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Session: middleware.SessionOptions{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Server.GinMode == "release",
		},
	}, c.Analysis, c.Sessions, c.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize web server")
	}

	c.Ops = ops.NewRouter(ops.Info{Predictor: predictor.Name(), Version: Version, Started: c.started}, c.Sessions)

	c.Logger.Info("[Container] predictor=%s seed=%d history_cap=%d session_ttl=%v", predictor.Name(), c.RNG.Seed(), cfg.Session.MaxEvents, cfg.Session.TTL)
	return c, nil
}

// NewPredictor builds the predictor selected by cfg.Predictor
func NewPredictor(cfg config.ModelConfig, source ports.RNGPort, logger *internal.Logger) (ports.Predictor, error) {
	switch cfg.Predictor {
	case "", config.PredictorRandom:
		return random.New(source), nil
	case config.PredictorDualBranch:
		p, err := dualbranch.New(cfg.WeightsPath, source, logger)
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		return p, nil
	case config.PredictorRemote:
		p, err := remote.New(remote.Config{URL: cfg.RemoteURL, Timeout: cfg.RemoteTimeout})
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		return p, nil
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unknown predictor %q", cfg.Predictor))
	}
}

// Run starts the session janitor, the ops listener when enabled and the web
// server, and blocks until ctx is cancelled or a listener fails
func (c *Container) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go session.RunJanitor(ctx, c.Sessions, c.Config.Session.TTL, c.Config.Session.JanitorInterval, c.sessionExpired)

	errCh := make(chan error, 2)
	if c.Config.Profiling.Enabled {
		go func() {
			if err := ops.Serve(ctx, ":"+c.Config.Profiling.Port, c.Ops); err != nil {
				c.Logger.Error("[Container] ops listener failed: %v", err)
			}
		}()
	}
	go func() {
		errCh <- c.Server.Run(ctx, ":"+c.Config.Server.Port)
	}()

	return <-errCh
}

// sessionExpired ends the event streams still attached to an expired session
func (c *Container) sessionExpired(id core.SessionID) {
	c.Analysis.Events().CloseSession(id.String())
}

// Shutdown logs the sessions still live when the process stops; they are
// memory-only and go away with it
func (c *Container) Shutdown(ctx context.Context) error {
	c.Logger.Info("[Container] shutting down with %d live sessions", c.Sessions.Count(ctx))
	return ctx.Err()
}
