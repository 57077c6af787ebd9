// Package storage persists uploaded templates, their rules and sample data.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DevSymphony/fillin/internal/rule"
)

const (
	// IDLength is the default number of hex digits in a template id.
	IDLength = 12
	// idStep is how many digits a colliding id grows by.
	idStep = 4

	uploadsDir = "uploads"
)

// ErrNotFound is returned for unknown templates or fields.
var ErrNotFound = errors.New("not found")

// Template is the metadata of an uploaded document.
type Template struct {
	ID          string    `json:"template_id"`
	Name        string    `json:"template_name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ContentHash string    `json:"content_hash"`
	FilePath    string    `json:"file_path"`
}

// UploadRequest is a document to store.
type UploadRequest struct {
	Content []byte
	// Filename is the client-side name, used for the stored extension and as
	// the default display name.
	Filename    string
	Name        string
	Description string
}

// Repository is the persistence boundary of the server.
type Repository interface {
	// Upload stores the document. Identical bytes map to the same template,
	// whose metadata is replaced.
	Upload(ctx context.Context, req UploadRequest) (Template, error)
	Template(ctx context.Context, id string) (Template, error)
	Document(ctx context.Context, id string) (string, error)
	ListTemplates(ctx context.Context) ([]Template, error)

	SaveRule(ctx context.Context, id, field string, r rule.Rule) (rule.Rule, error)
	LoadRules(ctx context.Context, id string) (rule.Set, error)
	LoadRule(ctx context.Context, id, field string) (rule.Rule, error)
	DeleteRule(ctx context.Context, id, field string) (bool, error)
	// RuleTemplates lists template ids that have at least one saved rule.
	RuleTemplates(ctx context.Context) ([]string, error)

	SaveSampleData(ctx context.Context, id string, data map[string]string) error
	SampleData(ctx context.Context, id string) (map[string]string, error)

	Close() error
}

// Open creates the repository selected by driver under dir.
func Open(driver, dir string) (Repository, error) {
	switch driver {
	case "", "json":
		return NewJSON(dir)
	case "sqlite":
		return NewSQLite(dir)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (available: json, sqlite)", driver)
	}
}

// ContentHash returns the hex SHA-256 digest of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// assignID picks the shortest id prefix of hash, starting at IDLength, that
// is free or already belongs to the same content.
func assignID(hash string, owner func(id string) (string, bool)) string {
	for n := IDLength; n < len(hash); n += idStep {
		id := hash[:n]
		existing, taken := owner(id)
		if !taken || existing == hash {
			return id
		}
	}
	return hash
}

// newTemplate builds the record for an upload with the given id.
func newTemplate(id, hash string, req UploadRequest, dir string) Template {
	name := req.Name
	if name == "" {
		name = req.Filename
	}
	if name == "" {
		name = id
	}
	return Template{
		ID:          id,
		Name:        name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
		ContentHash: hash,
		FilePath:    filepath.Join(dir, uploadsDir, id+uploadExt(req.Filename)),
	}
}

func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".html", ".htm", ".xhtml", ".txt":
		return ext
	default:
		return ".html"
	}
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func stamp(r rule.Rule) rule.Rule {
	r.UpdatedAt = time.Now().UTC()
	return r
}
