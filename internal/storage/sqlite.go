package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DevSymphony/fillin/internal/rule"
)

const dbFile = "fillin.db"

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	file_path    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rules (
	template_id TEXT NOT NULL,
	field       TEXT NOT NULL,
	body        TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (template_id, field)
);

CREATE TABLE IF NOT EXISTS sample_data (
	template_id TEXT PRIMARY KEY,
	body        TEXT NOT NULL
);
`

// SQLiteRepository stores metadata, rules and sample data in one SQLite
// database. Documents are kept as files, like the JSON backend.
type SQLiteRepository struct {
	dir string
	db  *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLite opens or creates dir/fillin.db.
func NewSQLite(dir string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Join(dir, uploadsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := filepath.Join(dir, dbFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteRepository{dir: dir, db: db}, nil
}

func (s *SQLiteRepository) Upload(ctx context.Context, req UploadRequest) (Template, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Template{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hash := ContentHash(req.Content)
	var lookupErr error
	id := assignID(hash, func(id string) (string, bool) {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT content_hash FROM templates WHERE id = ?`, id).Scan(&existing)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				lookupErr = err
			}
			return "", false
		}
		return existing, true
	})
	if lookupErr != nil {
		return Template{}, fmt.Errorf("failed to look up template: %w", lookupErr)
	}

	var oldPath string
	err = tx.QueryRowContext(ctx, `SELECT file_path FROM templates WHERE id = ?`, id).Scan(&oldPath)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("failed to look up template: %w", err)
	}

	t := newTemplate(id, hash, req, s.dir)
	if err := writeFileAtomic(t.FilePath, req.Content); err != nil {
		return Template{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, name, description, created_at, content_hash, file_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			created_at = excluded.created_at,
			file_path = excluded.file_path`,
		t.ID, t.Name, t.Description, t.CreatedAt.Format(time.RFC3339Nano), t.ContentHash, t.FilePath)
	if err != nil {
		return Template{}, fmt.Errorf("failed to save template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Template{}, fmt.Errorf("failed to commit: %w", err)
	}
	// a re-upload with another extension leaves the previous file behind
	if oldPath != "" && oldPath != t.FilePath {
		_ = os.Remove(oldPath)
	}
	return t, nil
}

func (s *SQLiteRepository) Template(ctx context.Context, id string) (Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, content_hash, file_path
		FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, notFound("template", id)
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to load template: %w", err)
	}
	return t, nil
}

func (s *SQLiteRepository) Document(ctx context.Context, id string) (string, error) {
	t, err := s.Template(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(t.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", notFound("document", id)
		}
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteRepository) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, content_hash, file_path
		FROM templates`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortTemplates(out)
	return out, nil
}

func (s *SQLiteRepository) SaveRule(ctx context.Context, id, field string, r rule.Rule) (rule.Rule, error) {
	if id == "" || field == "" {
		return rule.Rule{}, fmt.Errorf("template id and field name are required")
	}

	r = stamp(r)
	body, err := json.Marshal(r)
	if err != nil {
		return rule.Rule{}, fmt.Errorf("failed to marshal rule: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (template_id, field, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(template_id, field) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		id, field, string(body), r.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return rule.Rule{}, fmt.Errorf("failed to save rule: %w", err)
	}
	return r, nil
}

func (s *SQLiteRepository) LoadRules(ctx context.Context, id string) (rule.Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, body FROM rules WHERE template_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	set := make(rule.Set)
	for rows.Next() {
		var field, body string
		if err := rows.Scan(&field, &body); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		var r rule.Rule
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("invalid rule %s: %w", field, err)
		}
		set[field] = r
	}
	return set, rows.Err()
}

func (s *SQLiteRepository) LoadRule(ctx context.Context, id, field string) (rule.Rule, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rules WHERE template_id = ? AND field = ?`, id, field).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return rule.Rule{}, notFound("rule", id+"/"+field)
	}
	if err != nil {
		return rule.Rule{}, fmt.Errorf("failed to load rule: %w", err)
	}

	var r rule.Rule
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return rule.Rule{}, fmt.Errorf("invalid rule %s: %w", field, err)
	}
	return r, nil
}

func (s *SQLiteRepository) DeleteRule(ctx context.Context, id, field string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE template_id = ? AND field = ?`, id, field)
	if err != nil {
		return false, fmt.Errorf("failed to delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteRepository) RuleTemplates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT template_id FROM rules ORDER BY template_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule templates: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteRepository) SaveSampleData(ctx context.Context, id string, data map[string]string) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal sample data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sample_data (template_id, body) VALUES (?, ?)
		ON CONFLICT(template_id) DO UPDATE SET body = excluded.body`, id, string(body))
	if err != nil {
		return fmt.Errorf("failed to save sample data: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) SampleData(ctx context.Context, id string) (map[string]string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM sample_data WHERE template_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sample data: %w", err)
	}

	data := map[string]string{}
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, fmt.Errorf("invalid sample data: %w", err)
	}
	return data, nil
}

// Close closes the database connection.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (Template, error) {
	var (
		t       Template
		created string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &created, &t.ContentHash, &t.FilePath); err != nil {
		return Template{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Template{}, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	t.CreatedAt = ts
	return t, nil
}
