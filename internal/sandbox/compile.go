package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"
)

const (
	entryName = "fillinEntry"
	ruleName  = "fillinRule"
)

// reserved identifiers used by the generated entry point.
var reserved = map[string]bool{
	"fillinrt": true,
	entryName:  true,
}

// Snippet is a validated rule snippet.
type Snippet struct {
	// Body is set for the function-body shape. Decls and Func are empty then.
	Body string
	// Decls holds the top-level declarations without package clause or imports.
	Decls string
	// Func is the declared function to call.
	Func    string
	Params  int
	Results int
	// Imports maps import paths, explicit or inferred, to their local name
	// ("" for the default one).
	Imports map[string]string
}

// IsBody reports whether the snippet is a bare function body.
func (sn *Snippet) IsBody() bool {
	return sn.Func == ""
}

// ImportPaths returns the snippet imports, sorted.
func (sn *Snippet) ImportPaths() []string {
	paths := make([]string, 0, len(sn.Imports))
	for p := range sn.Imports {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ImportSpec renders the import line for path, alias included.
func (sn *Snippet) ImportSpec(path string) string {
	if name := sn.Imports[path]; name != "" {
		return name + " " + strconv.Quote(path)
	}
	return strconv.Quote(path)
}

// program is a snippet rewritten into an interpretable main package.
type program struct {
	source string
}

// Parse validates code without running it. Two shapes are accepted: a
// function body, or a file-level declaration of a function taking no
// arguments or (data map[string]string) and returning a value or
// (value, error). Functions named generate* win over helpers.
func (s *Sandbox) Parse(code string) (*Snippet, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("empty snippet")
	}

	if sn, ok, err := s.parseDecl(code); ok || err != nil {
		return sn, err
	}
	return s.parseBody(code)
}

func (s *Sandbox) parseDecl(code string) (*Snippet, bool, error) {
	src := code
	if !strings.HasPrefix(strings.TrimSpace(code), "package ") {
		src = "package main\n" + code
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "rule.go", src, 0)
	if err != nil {
		return nil, false, nil
	}
	if f.Name.Name != "main" {
		return nil, true, fmt.Errorf("snippet must not declare package %s", f.Name.Name)
	}

	fn := pickFunc(f)
	if fn == nil {
		return nil, true, fmt.Errorf("snippet declares no function to call")
	}

	params := fn.Type.Params.NumFields()
	if params > 1 {
		return nil, true, fmt.Errorf("function %s must take no arguments or (data map[string]string)", fn.Name.Name)
	}
	results := 0
	if fn.Type.Results != nil {
		results = fn.Type.Results.NumFields()
	}
	if results < 1 || results > 2 {
		return nil, true, fmt.Errorf("function %s must return a value or (value, error)", fn.Name.Name)
	}

	if err := s.check(f); err != nil {
		return nil, true, err
	}

	return &Snippet{
		Decls:   strings.TrimSpace(stripHeader(fset, f, src)),
		Func:    fn.Name.Name,
		Params:  params,
		Results: results,
		Imports: s.imports(f),
	}, true, nil
}

func (s *Sandbox) parseBody(code string) (*Snippet, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "rule.go", "package main\n\n"+WrapBody(ruleName, code), 0)
	if err != nil {
		return nil, fmt.Errorf("invalid snippet: %w", err)
	}
	if err := s.check(f); err != nil {
		return nil, err
	}

	return &Snippet{Body: code, Imports: s.imports(f)}, nil
}

// WrapBody declares a function called name around a body-shaped snippet.
func WrapBody(name, body string) string {
	return "func " + name + "(data map[string]string) interface{} {\n" + body + "\n}"
}

// compile turns code into a program whose entry point reports the result
// through fillinrt.Result.
func (s *Sandbox) compile(code string) (*program, error) {
	sn, err := s.Parse(code)
	if err != nil {
		return nil, err
	}

	var decls, call string
	if sn.IsBody() {
		decls = WrapBody(ruleName, sn.Body)
		call = "\tfillinrt.Result(" + ruleName + "(fillinrt.Data()), nil)\n"
	} else {
		decls = sn.Decls
		args := ""
		if sn.Params == 1 {
			args = "fillinrt.Data()"
		}
		invoke := sn.Func + "(" + args + ")"
		if sn.Results == 2 {
			call = "\tv, err := " + invoke + "\n\tfillinrt.Result(v, err)\n"
		} else {
			call = "\tfillinrt.Result(" + invoke + ", nil)\n"
		}
	}

	var b strings.Builder
	b.WriteString("package main\n\nimport (\n")
	for _, p := range sn.ImportPaths() {
		b.WriteString("\t" + sn.ImportSpec(p) + "\n")
	}
	b.WriteString("\tfillinrt " + strconv.Quote(runtimePackage) + "\n)\n\n")
	b.WriteString(decls)
	b.WriteString("\n\nfunc " + entryName + "() {\n")
	b.WriteString(call)
	b.WriteString("}\n")

	return &program{source: b.String()}, nil
}

// pickFunc prefers a generate function and falls back to the last declared one.
func pickFunc(f *ast.File) *ast.FuncDecl {
	var last *ast.FuncDecl
	for _, d := range f.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Recv != nil {
			continue
		}
		if strings.HasPrefix(fd.Name.Name, "generate") {
			return fd
		}
		last = fd
	}
	return last
}

// check enforces the import allow-list and rejects goroutines and
// withheld package members.
func (s *Sandbox) check(f *ast.File) error {
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("invalid import %s", imp.Path.Value)
		}
		if !s.allowed[p] {
			return fmt.Errorf("%w: %q (allowed: %s)", ErrForbiddenImport, p, strings.Join(s.AllowedPackages(), ", "))
		}
	}

	locals := make(map[string]string)
	for p, name := range s.imports(f) {
		if name == "" {
			name = path.Base(p)
		}
		locals[name] = p
	}

	var bad error
	ast.Inspect(f, func(n ast.Node) bool {
		if bad != nil {
			return false
		}
		switch x := n.(type) {
		case *ast.GoStmt:
			bad = fmt.Errorf("%w: go statements are not allowed", ErrForbiddenStatement)
		case *ast.SelectorExpr:
			// a package reference is an identifier the parser could not resolve
			if id, ok := x.X.(*ast.Ident); ok && id.Obj == nil {
				if p, ok := locals[id.Name]; ok && isWithheld(p, x.Sel.Name) {
					bad = fmt.Errorf("%w: %s.%s is not available", ErrForbiddenStatement, p, x.Sel.Name)
				}
			}
		case *ast.Ident:
			if reserved[x.Name] {
				bad = fmt.Errorf("%w: identifier %s is reserved", ErrForbiddenStatement, x.Name)
			}
		}
		return true
	})
	return bad
}

func isWithheld(pkg, name string) bool {
	for _, n := range withheld[pkg] {
		if n == name {
			return true
		}
	}
	return false
}

// imports collects explicit imports plus allowed packages named by
// unresolved identifiers.
func (s *Sandbox) imports(f *ast.File) map[string]string {
	out := make(map[string]string)
	for _, imp := range f.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		if imp.Name != nil {
			out[p] = imp.Name.Name
		} else if _, ok := out[p]; !ok {
			out[p] = ""
		}
	}
	for _, id := range f.Unresolved {
		if p, ok := s.byName[id.Name]; ok {
			if _, seen := out[p]; !seen {
				out[p] = ""
			}
		}
	}
	return out
}

// stripHeader drops the package clause and import declarations from src.
func stripHeader(fset *token.FileSet, f *ast.File, src string) string {
	type span struct{ from, to int }
	spans := []span{{
		from: fset.Position(f.Package).Offset,
		to:   fset.Position(f.Name.End()).Offset,
	}}
	for _, d := range f.Decls {
		gd, ok := d.(*ast.GenDecl)
		if ok && gd.Tok == token.IMPORT {
			spans = append(spans, span{fset.Position(gd.Pos()).Offset, fset.Position(gd.End()).Offset})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].from > spans[j].from })
	for _, sp := range spans {
		src = src[:sp.from] + src[sp.to:]
	}
	return src
}
