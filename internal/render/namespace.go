package render

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/DevSymphony/fillin/internal/placeholder"
)

// namespaceDecls renames the top-level declarations of one rule that clash
// with names already used in the exported file. It returns the declarations,
// the possibly renamed entry function fn, and records every name it claims
// in used.
func namespaceDecls(decls, fn, field string, used map[string]bool) (string, string, error) {
	const header = "package export\n\n"

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "rule.go", header+decls, parser.ParseComments)
	if err != nil {
		return "", "", fmt.Errorf("invalid declarations for %s: %w", field, err)
	}

	names := make([]string, 0, len(f.Scope.Objects))
	own := make(map[string]bool, len(f.Scope.Objects))
	for name := range f.Scope.Objects {
		names = append(names, name)
		own[name] = true
	}
	sort.Strings(names)

	renamed := make(map[*ast.Object]string)
	for _, name := range names {
		if !used[name] {
			continue
		}
		base := name + "_" + placeholder.SafeName(field)
		fresh := base
		for n := 2; used[fresh] || own[fresh] || isRenameTarget(renamed, fresh); n++ {
			fresh = base + "_" + strconv.Itoa(n)
		}
		renamed[f.Scope.Objects[name]] = fresh
	}

	for _, name := range names {
		if to, ok := renamed[f.Scope.Objects[name]]; ok {
			used[to] = true
			if name == fn {
				fn = to
			}
			continue
		}
		used[name] = true
	}
	if len(renamed) == 0 {
		return decls, fn, nil
	}

	ast.Inspect(f, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Obj != nil {
			if to, ok := renamed[id.Obj]; ok {
				id.Name = to
			}
		}
		return true
	})

	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, f); err != nil {
		return "", "", fmt.Errorf("failed to print declarations for %s: %w", field, err)
	}
	out := buf.String()
	if i := strings.Index(out, "\n"); i >= 0 {
		out = out[i+1:]
	}
	return strings.TrimSpace(out), fn, nil
}

func isRenameTarget(renamed map[*ast.Object]string, name string) bool {
	for _, to := range renamed {
		if to == name {
			return true
		}
	}
	return false
}
