package render

import (
	"fmt"
	"go/format"
	"sort"
	"strconv"
	"strings"

	"github.com/DevSymphony/fillin/internal/placeholder"
	"github.com/DevSymphony/fillin/internal/rule"
	"github.com/DevSymphony/fillin/internal/sandbox"
)

// DefaultExportPackage is the package clause used when none is given.
const DefaultExportPackage = "fields"

// Parser validates executable rule code.
type Parser interface {
	Parse(code string) (*sandbox.Snippet, error)
}

// Export writes a standalone Go file with one generator per placeholder, a
// Generators table and a Fill helper. When gofmt rejects the result the
// unformatted source is returned along with the error.
func Export(pkg string, placeholders []placeholder.Placeholder, rules rule.Reader, parser Parser) ([]byte, error) {
	if pkg == "" {
		pkg = DefaultExportPackage
	}

	imports := map[string]bool{`"fmt"`: true, `"strings"`: true}
	var decls, funcs strings.Builder

	// names already taken at file level; rule declarations are renamed around them
	used := map[string]bool{"Fields": true, "Generators": true, "Fill": true, "stringify": true, "fmt": true, "strings": true}
	for _, p := range placeholders {
		used["field_"+placeholder.SafeName(p.Name)] = true
	}

	for _, p := range placeholders {
		fn := "field_" + placeholder.SafeName(p.Name)
		doc := fn + " has no rule and keeps its marker."
		body := "\treturn " + strconv.Quote(p.Marker) + ", nil\n"

		if r, ok := rules.Get(p.Name); ok {
			doc = fmt.Sprintf("%s computes %s from a %s rule.", fn, p.Name, r.Kind)
			body = exportBody(p.Name, r, parser, imports, used, &decls)
		}

		fmt.Fprintf(&funcs, "\n// %s\nfunc %s(data map[string]string) (string, error) {\n%s}\n", doc, fn, body)
	}

	var b strings.Builder
	b.WriteString("// Code generated by fillin export. DO NOT EDIT.\n\n")
	b.WriteString("package " + pkg + "\n\nimport (\n")
	for _, spec := range sortedKeys(imports) {
		b.WriteString("\t" + spec + "\n")
	}
	b.WriteString(")\n\n")

	b.WriteString("// Fields lists the placeholders in document order.\nvar Fields = []string{\n")
	for _, p := range placeholders {
		b.WriteString("\t" + strconv.Quote(p.Name) + ",\n")
	}
	b.WriteString("}\n\n")

	b.WriteString("// Generators maps each field to its generator.\nvar Generators = map[string]func(map[string]string) (string, error){\n")
	for _, p := range placeholders {
		b.WriteString("\t" + strconv.Quote(p.Name) + ": field_" + placeholder.SafeName(p.Name) + ",\n")
	}
	b.WriteString("}\n\n")

	b.WriteString(fillHelper)
	b.WriteString(funcs.String())
	if decls.Len() > 0 {
		b.WriteString("\n" + decls.String())
	}

	src := []byte(b.String())
	formatted, err := format.Source(src)
	if err != nil {
		return src, fmt.Errorf("failed to format generated code: %w", err)
	}
	return formatted, nil
}

const fillHelper = `// Fill replaces every marker in doc with its generated value.
func Fill(doc string, data map[string]string) (string, error) {
	pairs := make([]string, 0, 2*len(Fields))
	for _, f := range Fields {
		v, err := Generators[f](data)
		if err != nil {
			return "", fmt.Errorf("%s: %w", f, err)
		}
		pairs = append(pairs, "/*"+f+"*/", v)
	}
	// one pass, so a value holding another marker is not expanded again
	return strings.NewReplacer(pairs...).Replace(doc), nil
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
`

// exportBody returns the generator body for r. Declarations that must live
// at file level are appended to decls and their imports to imports.
func exportBody(field string, r rule.Rule, parser Parser, imports, used map[string]bool, decls *strings.Builder) string {
	code, executable := r.Executable()
	if !executable {
		return "\treturn " + strconv.Quote(r.Value) + ", nil\n"
	}

	if parser == nil {
		return failBody("no code parser configured")
	}
	sn, err := parser.Parse(code)
	if err != nil {
		return failBody(err.Error())
	}
	if _, ok := sn.Imports[sandbox.HostPackage]; ok {
		return failBody("rule uses " + sandbox.HostPackage + " and only runs inside the editor")
	}
	if sn.IsBody() {
		addImports(sn, imports)
		return "\tv := func() interface{} {\n" + sn.Body + "\n\t}()\n\treturn stringify(v), nil\n"
	}

	src, fn, err := namespaceDecls(sn.Decls, sn.Func, field, used)
	if err != nil {
		return failBody(err.Error())
	}
	addImports(sn, imports)
	decls.WriteString(src + "\n\n")

	args := ""
	if sn.Params == 1 {
		args = "data"
	}
	call := fn + "(" + args + ")"
	if sn.Results == 1 {
		return "\treturn stringify(" + call + "), nil\n"
	}
	return "\tv, err := " + call + "\n\tif err != nil {\n\t\treturn \"\", err\n\t}\n\treturn stringify(v), nil\n"
}

func addImports(sn *sandbox.Snippet, imports map[string]bool) {
	for _, p := range sn.ImportPaths() {
		imports[sn.ImportSpec(p)] = true
	}
}

func failBody(msg string) string {
	return "\treturn \"\", fmt.Errorf(\"%s\", " + strconv.Quote(msg) + ")\n"
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
