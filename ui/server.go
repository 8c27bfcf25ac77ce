package ui

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"time"

	"biomark/app"
	"biomark/internal"
	"biomark/ports"
	"biomark/ui/middleware"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

//go:embed templates static content
var embeddedFiles embed.FS

// Options configures the web server
type Options struct {
	Title          string
	Icon           string
	GinMode        string
	MaxUploadBytes int64
	Session        middleware.SessionOptions
}

// Server represents the web server for the analysis dashboard
type Server struct {
	router    *gin.Engine
	analysis  *app.AnalysisService
	sessions  ports.SessionRepository
	templates *template.Template
	about     template.HTML
	opts      Options
	logger    *internal.Logger
}

// NewServer creates a new web server instance with routes registered
func NewServer(opts Options, analysis *app.AnalysisService, sessions ports.SessionRepository, logger *internal.Logger) (*Server, error) {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}

	s := &Server{
		router:   gin.New(),
		analysis: analysis,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	s.templates = templates

	about, err := renderAbout()
	if err != nil {
		return nil, err
	}
	s.about = about

	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures Gin middleware
func (s *Server) setupMiddleware() error {
	s.router.Use(gin.Logger(), gin.Recovery())
	if s.opts.MaxUploadBytes > 0 {
		s.router.MaxMultipartMemory = s.opts.MaxUploadBytes
	}

	// Serve static files from embedded filesystem
	staticFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create static filesystem: %w", err)
	}
	s.router.StaticFS("/static", http.FS(staticFS))
	return nil
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "predictor": s.analysis.PredictorName()})
	})
	s.router.GET("/about", s.handleAbout)
	s.router.GET("/api/metrics/model", s.handleModelMetrics)

	withSession := s.router.Group("/", middleware.EnsureSession(s.sessions, s.opts.Session))
	withSession.GET("/", s.handleIndex)

	api := withSession.Group("/api")
	api.GET("/session", s.handleSessionStatus)
	api.POST("/session/end", s.handleEndSession)

	api.POST("/image", s.handleUploadImage)
	api.DELETE("/image", s.handleClearImage)

	api.POST("/predict", s.handlePredict)
	api.GET("/prediction", s.handleLastPrediction)
	api.GET("/history", s.handleHistory)
	api.GET("/summary", s.handleSummary)
	api.GET("/profile", s.handleProfile)
	api.GET("/events", s.handleEvents)
	api.GET("/charts", s.handleCharts)
	api.GET("/report", s.handleReport)
	api.GET("/heatmap.png", s.handleHeatmap)

	export := api.Group("/export")
	export.GET("/history.csv", s.handleExportCSV)
	export.GET("/history.xlsx", s.handleExportXLSX)
	export.GET("/report.pdf", s.handleExportPDF)
	export.GET("/bundle.zip", s.handleExportBundle)
}

// Handler exposes the router, for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Open event streams
// are closed when shutdown begins so they do not hold it up.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.analysis.Events().CloseAll)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] %s listening on http://%s", s.opts.Title, ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Printf("[Server] shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
