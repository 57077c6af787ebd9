package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	sb := New(Options{})

	t.Run("body form is wrapped in a data function", func(t *testing.T) {
		prog, err := sb.compile(`return strings.TrimSpace(data["x"])`)
		require.NoError(t, err)
		assert.Contains(t, prog.source, "func fillinRule(data map[string]string) interface{}")
		assert.Contains(t, prog.source, `"strings"`)
		assert.Contains(t, prog.source, "fillinrt.Result(fillinRule(fillinrt.Data()), nil)")
	})

	t.Run("declaration form calls the generate function", func(t *testing.T) {
		prog, err := sb.compile("func helper() string { return \"\" }\n\nfunc generate_Name(data map[string]string) string {\n\treturn helper()\n}")
		require.NoError(t, err)
		assert.Contains(t, prog.source, "fillinrt.Result(generate_Name(fillinrt.Data()), nil)")
	})

	t.Run("two-result functions report their error", func(t *testing.T) {
		prog, err := sb.compile("func generate_X() (string, error) { return \"\", nil }")
		require.NoError(t, err)
		assert.Contains(t, prog.source, "v, err := generate_X()")
	})

	t.Run("import aliases survive", func(t *testing.T) {
		prog, err := sb.compile("import str \"strings\"\n\nfunc generate_X() string { return str.ToLower(\"A\") }")
		require.NoError(t, err)
		assert.Contains(t, prog.source, `str "strings"`)
		assert.Equal(t, 1, strings.Count(prog.source, `"strings"`))
	})

	t.Run("foreign package clause is rejected", func(t *testing.T) {
		_, err := sb.compile("package evil\n\nfunc generate_X() string { return \"\" }")
		assert.Error(t, err)
	})

	t.Run("too many parameters", func(t *testing.T) {
		_, err := sb.compile("func generate_X(a, b string) string { return a }")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no arguments")
	})

	t.Run("unreferenced packages are not imported", func(t *testing.T) {
		prog, err := sb.compile(`return "strings."`)
		require.NoError(t, err)
		assert.NotContains(t, prog.source, `"strings"`)
	})
}

func TestParse(t *testing.T) {
	sb := New(Options{})

	t.Run("body", func(t *testing.T) {
		sn, err := sb.Parse(`return fmt.Sprint(len(data))`)
		require.NoError(t, err)
		assert.True(t, sn.IsBody())
		assert.Equal(t, []string{"fmt"}, sn.ImportPaths())
	})

	t.Run("declaration", func(t *testing.T) {
		sn, err := sb.Parse("import s \"strings\"\n\nfunc generate_A(data map[string]string) (string, error) {\n\treturn s.ToUpper(data[\"a\"]), nil\n}")
		require.NoError(t, err)
		assert.False(t, sn.IsBody())
		assert.Equal(t, "generate_A", sn.Func)
		assert.Equal(t, 1, sn.Params)
		assert.Equal(t, 2, sn.Results)
		assert.Equal(t, `s "strings"`, sn.ImportSpec("strings"))
		assert.NotContains(t, sn.Decls, "import")
		assert.True(t, strings.HasPrefix(sn.Decls, "func generate_A"))
	})
}

func TestAllowedPackages(t *testing.T) {
	sb := New(Options{Packages: []string{"strings"}})
	assert.Equal(t, []string{HostPackage, "strings"}, sb.AllowedPackages())
}
