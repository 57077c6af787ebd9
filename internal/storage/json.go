package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/DevSymphony/fillin/internal/rule"
)

const (
	rulesFile     = "rules.json"
	templatesFile = "templates.json"
	dataFile      = "data.json"
)

// JSONRepository keeps each collection in a JSON file under dir. Writers in
// one process are serialized; concurrent processes may lose updates.
type JSONRepository struct {
	dir string
	mu  sync.Mutex
}

var _ Repository = (*JSONRepository)(nil)

// NewJSON creates a repository rooted at dir.
func NewJSON(dir string) (*JSONRepository, error) {
	if err := os.MkdirAll(filepath.Join(dir, uploadsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &JSONRepository{dir: dir}, nil
}

// Dir returns the data directory.
func (j *JSONRepository) Dir() string {
	return j.dir
}

func (j *JSONRepository) Upload(ctx context.Context, req UploadRequest) (Template, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var templates map[string]Template
	if err := j.read(templatesFile, &templates); err != nil {
		return Template{}, err
	}

	hash := ContentHash(req.Content)
	id := assignID(hash, func(id string) (string, bool) {
		t, ok := templates[id]
		return t.ContentHash, ok
	})

	t := newTemplate(id, hash, req, j.dir)
	if err := writeFileAtomic(t.FilePath, req.Content); err != nil {
		return Template{}, err
	}
	if old, ok := templates[id]; ok && old.FilePath != t.FilePath {
		_ = os.Remove(old.FilePath)
	}

	templates[id] = t
	if err := j.write(templatesFile, templates); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (j *JSONRepository) Template(ctx context.Context, id string) (Template, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var templates map[string]Template
	if err := j.read(templatesFile, &templates); err != nil {
		return Template{}, err
	}
	t, ok := templates[id]
	if !ok {
		return Template{}, notFound("template", id)
	}
	return t, nil
}

func (j *JSONRepository) Document(ctx context.Context, id string) (string, error) {
	t, err := j.Template(ctx, id)
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

func (j *JSONRepository) ListTemplates(ctx context.Context) ([]Template, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var templates map[string]Template
	if err := j.read(templatesFile, &templates); err != nil {
		return nil, err
	}

	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sortTemplates(out)
	return out, nil
}

func (j *JSONRepository) SaveRule(ctx context.Context, id, field string, r rule.Rule) (rule.Rule, error) {
	if id == "" || field == "" {
		return rule.Rule{}, fmt.Errorf("template id and field name are required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var all map[string]rule.Set
	if err := j.read(rulesFile, &all); err != nil {
		return rule.Rule{}, err
	}
	if all[id] == nil {
		all[id] = make(rule.Set)
	}

	r = stamp(r)
	all[id][field] = r
	if err := j.write(rulesFile, all); err != nil {
		return rule.Rule{}, err
	}
	return r, nil
}

func (j *JSONRepository) LoadRules(ctx context.Context, id string) (rule.Set, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var all map[string]rule.Set
	if err := j.read(rulesFile, &all); err != nil {
		return nil, err
	}
	if all[id] == nil {
		return make(rule.Set), nil
	}
	return all[id], nil
}

func (j *JSONRepository) LoadRule(ctx context.Context, id, field string) (rule.Rule, error) {
	rules, err := j.LoadRules(ctx, id)
	if err != nil {
		return rule.Rule{}, err
	}
	r, ok := rules[field]
	if !ok {
		return rule.Rule{}, notFound("rule", id+"/"+field)
	}
	return r, nil
}

func (j *JSONRepository) DeleteRule(ctx context.Context, id, field string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var all map[string]rule.Set
	if err := j.read(rulesFile, &all); err != nil {
		return false, err
	}
	if _, ok := all[id][field]; !ok {
		return false, nil
	}

	delete(all[id], field)
	if len(all[id]) == 0 {
		delete(all, id)
	}
	return true, j.write(rulesFile, all)
}

func (j *JSONRepository) RuleTemplates(ctx context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var all map[string]rule.Set
	if err := j.read(rulesFile, &all); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id, set := range all {
		if len(set) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (j *JSONRepository) SaveSampleData(ctx context.Context, id string, data map[string]string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var all map[string]map[string]string
	if err := j.read(dataFile, &all); err != nil {
		return err
	}
	all[id] = data
	return j.write(dataFile, all)
}

func (j *JSONRepository) SampleData(ctx context.Context, id string) (map[string]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var all map[string]map[string]string
	if err := j.read(dataFile, &all); err != nil {
		return nil, err
	}
	if all[id] == nil {
		return map[string]string{}, nil
	}
	return all[id], nil
}

// Close is a no-op; every call opens and closes its files.
func (j *JSONRepository) Close() error {
	return nil
}

// read decodes name into v, which must point to a map. Missing or empty
// files decode as an empty map.
func (j *JSONRepository) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(j.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	return nil
}

func (j *JSONRepository) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return writeFileAtomic(filepath.Join(j.dir, name), data)
}

func sortTemplates(ts []Template) {
	sort.Slice(ts, func(i, k int) bool {
		if !ts[i].CreatedAt.Equal(ts[k].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[k].CreatedAt)
		}
		return ts[i].ID < ts[k].ID
	})
}
