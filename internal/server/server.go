// Package server serves the rule persistence and synthesis API together
// with the embedded browser editor.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DevSymphony/fillin/internal/logging"
	"github.com/DevSymphony/fillin/internal/render"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/synth"
)

//go:embed static/*
var staticFiles embed.FS

const (
	maxUploadBytes  = 32 << 20
	shutdownTimeout = 5 * time.Second
)

// Evaluator runs rule code and parses it for export.
type Evaluator interface {
	render.Evaluator
	render.Parser
}

// PDFRenderer prints HTML to PDF.
type PDFRenderer interface {
	Render(ctx context.Context, markup string) ([]byte, error)
}

// Config wires the server's collaborators.
type Config struct {
	Repo      storage.Repository
	Synth     synth.Synthesizer
	Evaluator Evaluator
	// PDF may be nil, in which case the PDF endpoint answers 503.
	PDF    PDFRenderer
	Logger *zap.Logger

	// Provider is reported by /health.
	Provider      string
	KeyConfigured bool
	ExampleLimit  int
}

// Server is the HTTP front of a Repository.
type Server struct {
	repo          storage.Repository
	synth         synth.Synthesizer
	eval          Evaluator
	pdf           PDFRenderer
	logger        *zap.Logger
	provider      string
	keyConfigured bool
	exampleLimit  int
}

// New creates a server. A nil Synth answers synthesis calls with 503.
func New(cfg Config) *Server {
	s := &Server{
		repo:          cfg.Repo,
		synth:         cfg.Synth,
		eval:          cfg.Evaluator,
		pdf:           cfg.PDF,
		logger:        logging.OrNop(cfg.Logger),
		provider:      cfg.Provider,
		keyConfigured: cfg.KeyConfigured,
		exampleLimit:  cfg.ExampleLimit,
	}
	if s.synth == nil {
		s.synth = synth.Unavailable{}
	}
	return s
}

// Handler returns the routed handler with request id, logging and CORS
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Rule synthesis
	mux.HandleFunc("POST /api/rules/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/rules/generate-simple", s.handleGenerateSimple)

	// Rule persistence
	mux.HandleFunc("POST /api/rules/save", s.handleSaveRule)
	mux.HandleFunc("GET /api/rules/templates", s.handleRuleTemplates)
	mux.HandleFunc("GET /api/rules/template/{id}", s.handleTemplateRules)
	mux.HandleFunc("GET /api/rules/template/{id}/field/{field}", s.handleGetRule)
	mux.HandleFunc("DELETE /api/rules/template/{id}/field/{field}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/rules/template/{id}/field/{field}/test", s.handleTestRule)

	// Templates
	mux.HandleFunc("POST /api/rules/template/upload", s.handleUpload)
	mux.HandleFunc("GET /api/rules/template/{id}/placeholders", s.handlePlaceholders)
	mux.HandleFunc("POST /api/rules/template/{id}/data", s.handleSampleData)
	mux.HandleFunc("GET /api/rules/template/{id}/render", s.handleRender)
	mux.HandleFunc("GET /api/rules/template/{id}/export", s.handleExport)
	mux.HandleFunc("POST /api/document/pdf", s.handlePDF)

	// Static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /", http.FileServer(http.FS(staticFS)))

	return s.requestID(s.accessLog(corsMiddleware(mux)))
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
// When openBrowser is set the editor is opened once the listener is up.
func (s *Server) Start(ctx context.Context, addr string, openBrowser bool) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	url := "http://" + ln.Addr().String()

	fmt.Printf("Starting editor at %s\n", url)
	fmt.Println("Press Ctrl+C to stop")
	s.logger.Info("server started", zap.String("addr", ln.Addr().String()), zap.String("provider", s.provider))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("server stopping")
		return srv.Shutdown(shutdownCtx)
	})

	if openBrowser {
		go func() {
			if err := browser.OpenURL(url); err != nil {
				fmt.Printf("Could not open browser: %v\n", err)
				fmt.Printf("Please manually open: %s\n", url)
			}
		}()
	}

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"openai_key_configured": s.keyConfigured,
		"provider":              s.provider,
	})
}
