// Package pdf prints HTML documents to PDF with a headless Chrome.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/DevSymphony/fillin/internal/logging"
)

// DefaultTimeout bounds one render, browser start included.
const DefaultTimeout = 30 * time.Second

// ErrNoBrowser is returned when no Chrome or Chromium binary can be found.
var ErrNoBrowser = errors.New("no Chrome or Chromium binary found")

// Options configures a Renderer.
type Options struct {
	// Bin is the browser executable. Empty means look it up on the system.
	Bin     string
	Timeout time.Duration
}

// Renderer launches a short-lived browser per document.
type Renderer struct {
	bin     string
	timeout time.Duration
	logger  *zap.Logger
}

// New returns a Renderer. The browser is located lazily on first use.
func New(opts Options, logger *zap.Logger) *Renderer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Renderer{bin: opts.Bin, timeout: opts.Timeout, logger: logging.OrNop(logger)}
}

// Available reports whether a browser binary can be located.
func (r *Renderer) Available() bool {
	_, err := r.browserBin()
	return err == nil
}

func (r *Renderer) browserBin() (string, error) {
	if r.bin != "" {
		return r.bin, nil
	}
	if bin, ok := launcher.LookPath(); ok {
		return bin, nil
	}
	return "", ErrNoBrowser
}

// Render prints markup to PDF with backgrounds and CSS page sizes honoured.
func (r *Renderer) Render(ctx context.Context, markup string) ([]byte, error) {
	bin, err := r.browserBin()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	l := launcher.New().Context(ctx).Bin(bin).Headless(true).Leakless(false)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetDocumentContent(markup); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for document: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	r.logger.Debug("rendered pdf", zap.Int("html_bytes", len(markup)), zap.Int("pdf_bytes", len(out)))
	return out, nil
}
