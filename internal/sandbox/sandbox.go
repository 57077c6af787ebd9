// Package sandbox evaluates untrusted rule snippets in an isolated Go interpreter.
//
// Snippets are interpreted by yaegi with a restricted symbol table: only an
// allow-list of side-effect free stdlib packages is visible, and any I/O goes
// through the mediated "fillin/host" package.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const (
	defaultTimeout        = 2 * time.Second
	defaultMaxFetchBytes  = 1 << 20
	defaultMaxRepeatBytes = 1 << 20
	maxRedirects          = 5

	// HostPackage is the import path of the mediated I/O package.
	HostPackage = "fillin/host"

	runtimePackage = "fillin/fillinrt"
)

var (
	// ErrTimeout is returned when a snippet exceeds its time budget.
	ErrTimeout = errors.New("sandbox: evaluation timed out")
	// ErrForbiddenImport is returned when a snippet imports a package outside the allow-list.
	ErrForbiddenImport = errors.New("sandbox: forbidden import")
	// ErrForbiddenStatement is returned for constructs the sandbox refuses to run.
	ErrForbiddenStatement = errors.New("sandbox: forbidden statement")
	// ErrFetchDenied is returned when host.Fetch targets a host outside the allow-list.
	ErrFetchDenied = errors.New("sandbox: fetch not permitted")
	// ErrResourceDenied is returned when host.Resource names an unknown resource.
	ErrResourceDenied = errors.New("sandbox: resource not permitted")
	// ErrTooLarge is returned when a snippet asks an allocator for more than MaxRepeatBytes.
	ErrTooLarge = errors.New("sandbox: allocation too large")
)

// withheld lists symbols of allowed packages that snippets cannot reach.
// AfterFunc runs a callback on its own goroutine, which would outlive the
// evaluation; the others block or leak timers past the time budget.
var withheld = map[string][]string{
	"time": {"AfterFunc", "Sleep", "Tick", "After", "NewTimer", "NewTicker"},
}

// DefaultPackages is the stdlib allow-list visible to snippets.
var DefaultPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// Options configures a Sandbox.
type Options struct {
	Timeout time.Duration
	// Packages overrides DefaultPackages when non-empty.
	Packages []string
	// FetchAllowHosts lists host names host.Fetch may reach. Empty denies all.
	FetchAllowHosts []string
	MaxFetchBytes   int64
	// MaxRepeatBytes bounds the output of strings.Repeat and bytes.Repeat.
	MaxRepeatBytes int
	// Resources maps resource names readable through host.Resource to file paths.
	Resources  map[string]string
	HTTPClient *http.Client
}

// Sandbox evaluates snippets. It is safe for concurrent use; every
// evaluation gets a fresh interpreter.
type Sandbox struct {
	opts      Options
	symbols   interp.Exports
	allowed   map[string]bool
	byName    map[string]string
	fetchHost map[string]bool
}

// New creates a Sandbox, filling unset options with defaults.
func New(opts Options) *Sandbox {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if len(opts.Packages) == 0 {
		opts.Packages = DefaultPackages
	}
	if opts.MaxFetchBytes <= 0 {
		opts.MaxFetchBytes = defaultMaxFetchBytes
	}
	if opts.MaxRepeatBytes <= 0 {
		opts.MaxRepeatBytes = defaultMaxRepeatBytes
	}

	s := &Sandbox{
		opts:      opts,
		symbols:   interp.Exports{},
		allowed:   make(map[string]bool),
		byName:    make(map[string]string),
		fetchHost: make(map[string]bool),
	}

	for _, pkg := range opts.Packages {
		s.allowed[pkg] = true
		s.byName[path.Base(pkg)] = pkg
	}
	s.allowed[HostPackage] = true
	s.byName[path.Base(HostPackage)] = HostPackage

	for key, syms := range stdlib.Symbols {
		// keys look like "encoding/json/json"
		if pkg := path.Dir(key); s.allowed[pkg] {
			s.symbols[key] = s.restrict(pkg, syms)
		}
	}

	for _, h := range opts.FetchAllowHosts {
		s.fetchHost[strings.ToLower(strings.TrimSpace(h))] = true
	}

	// Copy the client so every redirect hop goes through the allow-list,
	// including for an injected client.
	client := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		client = &c
	}
	next := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := s.permit(req.URL); err != nil {
			return err
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: more than %d redirects", ErrFetchDenied, maxRedirects)
		}
		if next != nil {
			return next(req, via)
		}
		return nil
	}
	s.opts.HTTPClient = client

	return s
}

// restrict drops withheld symbols of pkg and bounds its allocators.
func (s *Sandbox) restrict(pkg string, syms map[string]reflect.Value) map[string]reflect.Value {
	out := make(map[string]reflect.Value, len(syms))
	for name, v := range syms {
		out[name] = v
	}
	for _, name := range withheld[pkg] {
		delete(out, name)
	}

	limit := s.opts.MaxRepeatBytes
	switch pkg {
	case "strings":
		out["Repeat"] = reflect.ValueOf(func(str string, count int) string {
			if count > 0 && len(str) > limit/count {
				panic(fmt.Errorf("%w: strings.Repeat over %d bytes", ErrTooLarge, limit))
			}
			return strings.Repeat(str, count)
		})
	case "bytes":
		out["Repeat"] = reflect.ValueOf(func(b []byte, count int) []byte {
			if count > 0 && len(b) > limit/count {
				panic(fmt.Errorf("%w: bytes.Repeat over %d bytes", ErrTooLarge, limit))
			}
			return bytes.Repeat(b, count)
		})
	}
	return out
}

// Timeout returns the per-evaluation time budget.
func (s *Sandbox) Timeout() time.Duration {
	return s.opts.Timeout
}

// AllowedPackages returns the import paths snippets may use, sorted.
func (s *Sandbox) AllowedPackages() []string {
	pkgs := make([]string, 0, len(s.allowed))
	for p := range s.allowed {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Evaluate runs code against data and returns the stringified result.
func (s *Sandbox) Evaluate(ctx context.Context, code string, data map[string]string) (string, error) {
	prog, err := s.compile(code)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var (
		result    interface{}
		resultErr error
		reported  bool
	)
	report := func(v interface{}, err error) {
		result, resultErr, reported = v, err, true
	}

	i := interp.New(interp.Options{
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err := i.Use(s.symbols); err != nil {
		return "", fmt.Errorf("failed to load symbols: %w", err)
	}
	if err := i.Use(s.hostExports(ctx, data, report)); err != nil {
		return "", fmt.Errorf("failed to load host package: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, prog.source); err != nil {
		return "", s.classify(ctx, err)
	}
	if _, err := i.EvalWithContext(ctx, "main."+entryName+"()"); err != nil {
		return "", s.classify(ctx, err)
	}

	if !reported {
		if ctx.Err() != nil {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("snippet produced no result")
	}
	if resultErr != nil {
		return "", resultErr
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

func (s *Sandbox) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, s.opts.Timeout)
	}
	var p interp.Panic
	if errors.As(err, &p) {
		if e, ok := p.Value.(error); ok {
			return fmt.Errorf("panic: %w", e)
		}
		return fmt.Errorf("panic: %v", p.Value)
	}
	return err
}

func (s *Sandbox) hostExports(ctx context.Context, data map[string]string, report func(interface{}, error)) interp.Exports {
	snapshot := make(map[string]string, len(data))
	for k, v := range data {
		snapshot[k] = v
	}
	dataFn := func() map[string]string {
		out := make(map[string]string, len(snapshot))
		for k, v := range snapshot {
			out[k] = v
		}
		return out
	}

	return interp.Exports{
		HostPackage + "/host": {
			"Data":     reflect.ValueOf(dataFn),
			"Fetch":    reflect.ValueOf(func(url string) (string, error) { return s.fetch(ctx, url) }),
			"Resource": reflect.ValueOf(s.resource),
		},
		runtimePackage + "/fillinrt": {
			"Data":   reflect.ValueOf(dataFn),
			"Result": reflect.ValueOf(report),
		},
	}
}
