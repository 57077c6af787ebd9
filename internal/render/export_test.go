package render

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/sandbox"
)

// runExport builds the exported package into a throwaway module and returns
// what its Fill makes of doc.
func runExport(t *testing.T, src []byte, doc string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds generated code")
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not on PATH")
	}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fields"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module exportcheck\n\ngo 1.21\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fields", "fields.go"), src, 0644))
	prog := `package main

import (
	"fmt"
	"os"

	"exportcheck/fields"
)

func main() {
	out, err := fields.Fill(` + strconv.Quote(doc) + `, map[string]string{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Print(out)
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(prog), 0644))

	cmd := exec.Command(gobin, "run", ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off", "GOFLAGS=")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

func TestExportFillMatchesPreview(t *testing.T) {
	doc := "A=/*A*/ B=/*B*/"
	phs := placeholder.Scan(doc)
	rules := rule.Set{
		"A": rule.Static("/*B*/"),
		"B": rule.Static("bee"),
	}

	src, err := Export("", phs, rules, sandbox.New(sandbox.Options{}))
	require.NoError(t, err)
	assert.Contains(t, string(src), "strings.NewReplacer(pairs...)")

	preview := Preview(context.Background(), doc, phs, rules, nil, nil)
	assert.Equal(t, "A=/*B*/ B=bee", preview.HTML)
	assert.Equal(t, preview.HTML, runExport(t, src, doc))
}

func TestExportRenamesCollidingDecls(t *testing.T) {
	doc := "/*A*/-/*B*/-/*C*/"
	code := func(v string) string {
		return "func helper() string { return " + strconv.Quote(v) + " }\n\nfunc generate() string { return helper() }"
	}
	rules := rule.Set{
		"A": rule.Script(code("a")),
		"B": rule.Script(code("b")),
		// clashes with the generated Fill helper
		"C": rule.Script("func Fill() string { return \"c\" }"),
	}

	src, err := Export("", placeholder.Scan(doc), rules, sandbox.New(sandbox.Options{}))
	require.NoError(t, err)
	out := string(src)

	assert.Contains(t, out, "func generate() string")
	assert.Contains(t, out, "func generate_B() string")
	assert.Contains(t, out, "return helper_B()")
	assert.Contains(t, out, "func Fill_C() string")
	assert.Contains(t, out, "return stringify(generate_B()), nil")

	assert.Equal(t, "a-b-c", runExport(t, src, doc))
}

func TestNamespaceDecls(t *testing.T) {
	used := map[string]bool{"helper": true}

	src, fn, err := namespaceDecls("func helper() int { return 1 }\n\nfunc generate() int { return helper() + 1 }", "generate", "Total", used)
	require.NoError(t, err)
	assert.Equal(t, "generate", fn)
	assert.Contains(t, src, "func helper_Total() int")
	assert.Contains(t, src, "return helper_Total() + 1")
	assert.True(t, used["helper_Total"])
	assert.True(t, used["generate"])

	t.Run("untouched when nothing clashes", func(t *testing.T) {
		decls := "func other() int { return 2 }"
		got, fn, err := namespaceDecls(decls, "other", "X", used)
		require.NoError(t, err)
		assert.Equal(t, decls, got)
		assert.Equal(t, "other", fn)
	})

	t.Run("local shadows are left alone", func(t *testing.T) {
		got, fn, err := namespaceDecls("func generate() int {\n\thelper := 3\n\treturn helper\n}", "generate", "Y", used)
		require.NoError(t, err)
		assert.Equal(t, "generate_Y", fn)
		assert.Contains(t, got, "helper := 3")
		assert.Contains(t, got, "func generate_Y() int")
	})
}
