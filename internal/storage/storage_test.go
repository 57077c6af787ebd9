package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevSymphony/fillin/internal/rule"
)

func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	t.Helper()
	return map[string]func(t *testing.T) Repository{
		"json": func(t *testing.T) Repository {
			repo, err := Open("json", t.TempDir())
			require.NoError(t, err)
			return repo
		},
		"sqlite": func(t *testing.T) Repository {
			repo, err := Open("sqlite", t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = repo.Close() })
			return repo
		},
	}
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	doc := []byte("<p>Hello /*Company*/</p>")

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("identical upload yields the same id", func(t *testing.T) {
				repo := open(t)
				first, err := repo.Upload(ctx, UploadRequest{Content: doc, Filename: "offer.html", Name: "Offer"})
				require.NoError(t, err)
				second, err := repo.Upload(ctx, UploadRequest{Content: doc, Filename: "offer.html", Name: "Offer v2", Description: "again"})
				require.NoError(t, err)

				assert.Len(t, first.ID, IDLength)
				assert.Equal(t, first.ID, second.ID)
				assert.Equal(t, ContentHash(doc)[:IDLength], first.ID)

				got, err := repo.Template(ctx, first.ID)
				require.NoError(t, err)
				assert.Equal(t, "Offer v2", got.Name)
				assert.Equal(t, "again", got.Description)

				list, err := repo.ListTemplates(ctx)
				require.NoError(t, err)
				assert.Len(t, list, 1)
			})

			t.Run("document round trip", func(t *testing.T) {
				repo := open(t)
				tpl, err := repo.Upload(ctx, UploadRequest{Content: doc, Filename: "x.htm"})
				require.NoError(t, err)
				assert.True(t, strings.HasSuffix(tpl.FilePath, tpl.ID+".htm"))
				assert.Equal(t, "x.htm", tpl.Name)

				got, err := repo.Document(ctx, tpl.ID)
				require.NoError(t, err)
				assert.Equal(t, string(doc), got)
			})

			t.Run("re-upload with another extension replaces the file", func(t *testing.T) {
				repo := open(t)
				first, err := repo.Upload(ctx, UploadRequest{Content: doc, Filename: "offer.htm"})
				require.NoError(t, err)
				second, err := repo.Upload(ctx, UploadRequest{Content: doc, Filename: "offer.html"})
				require.NoError(t, err)

				assert.Equal(t, first.ID, second.ID)
				assert.NoFileExists(t, first.FilePath)
				assert.FileExists(t, second.FilePath)

				got, err := repo.Document(ctx, second.ID)
				require.NoError(t, err)
				assert.Equal(t, string(doc), got)
			})

			t.Run("unknown template", func(t *testing.T) {
				repo := open(t)
				_, err := repo.Template(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = repo.Document(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("rules", func(t *testing.T) {
				repo := open(t)

				empty, err := repo.LoadRules(ctx, "tpl")
				require.NoError(t, err)
				assert.Empty(t, empty)

				saved, err := repo.SaveRule(ctx, "tpl", "Company", rule.Static("Acme"))
				require.NoError(t, err)
				assert.False(t, saved.UpdatedAt.IsZero())

				_, err = repo.SaveRule(ctx, "tpl", "Total", rule.Prompt("sum", "func generate_Total() string { return \"1\" }", "raw"))
				require.NoError(t, err)

				set, err := repo.LoadRules(ctx, "tpl")
				require.NoError(t, err)
				assert.Equal(t, []string{"Company", "Total"}, set.Fields())
				assert.Equal(t, rule.KindPrompt, set["Total"].Kind)
				assert.Equal(t, "raw", set["Total"].ModelNote)

				got, err := repo.LoadRule(ctx, "tpl", "Company")
				require.NoError(t, err)
				assert.Equal(t, "Acme", got.Value)
				assert.WithinDuration(t, saved.UpdatedAt, got.UpdatedAt, time.Millisecond)

				_, err = repo.LoadRule(ctx, "tpl", "Nope")
				assert.ErrorIs(t, err, ErrNotFound)

				ids, err := repo.RuleTemplates(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"tpl"}, ids)
			})

			t.Run("deleting an absent rule leaves the store unchanged", func(t *testing.T) {
				repo := open(t)
				_, err := repo.SaveRule(ctx, "tpl", "A", rule.Static("a"))
				require.NoError(t, err)

				deleted, err := repo.DeleteRule(ctx, "tpl", "B")
				require.NoError(t, err)
				assert.False(t, deleted)

				set, err := repo.LoadRules(ctx, "tpl")
				require.NoError(t, err)
				assert.Equal(t, []string{"A"}, set.Fields())

				deleted, err = repo.DeleteRule(ctx, "tpl", "A")
				require.NoError(t, err)
				assert.True(t, deleted)

				ids, err := repo.RuleTemplates(ctx)
				require.NoError(t, err)
				assert.Empty(t, ids)
			})

			t.Run("sample data", func(t *testing.T) {
				repo := open(t)
				data, err := repo.SampleData(ctx, "tpl")
				require.NoError(t, err)
				assert.Empty(t, data)

				require.NoError(t, repo.SaveSampleData(ctx, "tpl", map[string]string{"Name": "Ann"}))
				data, err = repo.SampleData(ctx, "tpl")
				require.NoError(t, err)
				assert.Equal(t, map[string]string{"Name": "Ann"}, data)
			})

			t.Run("save requires ids", func(t *testing.T) {
				repo := open(t)
				_, err := repo.SaveRule(ctx, "", "A", rule.Static("a"))
				assert.Error(t, err)
			})
		})
	}
}

func TestAssignID(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	t.Run("free prefix", func(t *testing.T) {
		id := assignID(hash, func(string) (string, bool) { return "", false })
		assert.Equal(t, hash[:IDLength], id)
	})

	t.Run("same content keeps its id", func(t *testing.T) {
		id := assignID(hash, func(string) (string, bool) { return hash, true })
		assert.Equal(t, hash[:IDLength], id)
	})

	t.Run("colliding prefix grows", func(t *testing.T) {
		owners := map[string]string{hash[:IDLength]: "other"}
		id := assignID(hash, func(id string) (string, bool) {
			h, ok := owners[id]
			return h, ok
		})
		assert.Equal(t, hash[:IDLength+idStep], id)
	})
}

func TestJSONCollision(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewJSON(dir)
	require.NoError(t, err)

	doc := []byte("collide /*X*/")
	prefix := ContentHash(doc)[:IDLength]

	seed := map[string]Template{prefix: {ID: prefix, Name: "other", ContentHash: "different", FilePath: filepath.Join(dir, "uploads", prefix+".html")}}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, templatesFile), data, 0644))

	tpl, err := repo.Upload(ctx, UploadRequest{Content: doc})
	require.NoError(t, err)
	assert.Len(t, tpl.ID, IDLength+idStep)
	assert.True(t, strings.HasPrefix(tpl.ID, prefix))

	other, err := repo.Template(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, "other", other.Name)
}

func TestJSONEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, rulesFile), []byte("  \n"), 0644))

	repo, err := NewJSON(dir)
	require.NoError(t, err)
	set, err := repo.LoadRules(context.Background(), "any")
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mongo", t.TempDir())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestTemplateRules(t *testing.T) {
	ctx := context.Background()
	repo, err := NewJSON(t.TempDir())
	require.NoError(t, err)
	rules := Rules(repo, "tpl")

	_, ok, err := rules.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = rules.Put(ctx, "A", rule.Rule{Kind: rule.KindScript})
	assert.Error(t, err, "invalid rules are rejected")

	_, err = rules.Put(ctx, "A", rule.Script(`return "a"`))
	require.NoError(t, err)

	r, ok, err := rules.Get(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rule.KindScript, r.Kind)

	fields, err := rules.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, fields)

	session, err := rules.Session(ctx)
	require.NoError(t, err)
	_, ok = session.Get("A")
	assert.True(t, ok)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	repo, err := NewJSON(t.TempDir())
	require.NoError(t, err)

	tpl, err := repo.Upload(ctx, UploadRequest{Content: []byte("/*A*/ /*B*/ /*A*/")})
	require.NoError(t, err)
	_, err = repo.SaveRule(ctx, tpl.ID, "A", rule.Static("a"))
	require.NoError(t, err)

	snap, err := Load(ctx, repo, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Placeholders, 2)
	assert.Contains(t, snap.Rules, "A")
	assert.NotNil(t, snap.Data)

	_, err = Load(ctx, repo, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
