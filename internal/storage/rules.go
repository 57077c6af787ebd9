package storage

import (
	"context"
	"errors"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/rule"
)

// TemplateRules is the rule store of one template, backed by a Repository.
type TemplateRules struct {
	repo Repository
	id   string
}

// Rules binds repo to the template id.
func Rules(repo Repository, id string) *TemplateRules {
	return &TemplateRules{repo: repo, id: id}
}

// Get returns the rule for field; ok is false when none is stored.
func (t *TemplateRules) Get(ctx context.Context, field string) (r rule.Rule, ok bool, err error) {
	r, err = t.repo.LoadRule(ctx, t.id, field)
	if errors.Is(err, ErrNotFound) {
		return rule.Rule{}, false, nil
	}
	if err != nil {
		return rule.Rule{}, false, err
	}
	return r, true, nil
}

// Put validates and stores r, replacing any previous rule.
func (t *TemplateRules) Put(ctx context.Context, field string, r rule.Rule) (rule.Rule, error) {
	if err := r.Validate(); err != nil {
		return rule.Rule{}, err
	}
	return t.repo.SaveRule(ctx, t.id, field, r)
}

// Delete removes the rule for field and reports whether one existed.
func (t *TemplateRules) Delete(ctx context.Context, field string) (bool, error) {
	return t.repo.DeleteRule(ctx, t.id, field)
}

// Fields lists the fields with stored rules, sorted.
func (t *TemplateRules) Fields(ctx context.Context) ([]string, error) {
	set, err := t.repo.LoadRules(ctx, t.id)
	if err != nil {
		return nil, err
	}
	return set.Fields(), nil
}

// Session returns an in-memory store seeded with the persisted rules.
func (t *TemplateRules) Session(ctx context.Context) (*rule.MemoryStore, error) {
	set, err := t.repo.LoadRules(ctx, t.id)
	if err != nil {
		return nil, err
	}
	return rule.NewMemoryStore(set), nil
}

// Snapshot is everything needed to render one template.
type Snapshot struct {
	Template     Template
	Document     string
	Placeholders []placeholder.Placeholder
	Rules        rule.Set
	Data         map[string]string
}

// Load reads the template, its document, rules and sample data.
func Load(ctx context.Context, repo Repository, id string) (*Snapshot, error) {
	t, err := repo.Template(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := repo.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	rules, err := repo.LoadRules(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := repo.SampleData(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Template:     t,
		Document:     doc,
		Placeholders: placeholder.Scan(doc),
		Rules:        rules,
		Data:         data,
	}, nil
}
