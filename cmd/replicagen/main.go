// replicagen generates replisync.Replica implementations for annotated
// Go structs, the way cmd/replicagen's predecessor generated
// change-tracking wrappers: parse a package directory with go/ast, find
// the named struct types, emit one file per invocation containing every
// method the Replica interface requires.
//
// Usage:
//
//	//go:generate replicagen -type=Position,Health -kind=1,2
//
// Each field participates in replication only if tagged
// `replica:"<index>"`, where index is that field's 0-based property
// index (and therefore its diff-mask bit). Supported field types are
// the wire primitives packet.go already knows how to read and write:
// int8/16/32/64, uint8/16/32/64 and bool. Tagged fields of any other
// type, and unexported fields, are skipped.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

var (
	typeNames = flag.String("type", "", "comma-separated list of struct type names")
	kindIDs   = flag.String("kind", "", "comma-separated list of Kind ids, one per -type entry")
	output    = flag.String("output", "", "output file name; default srcdir/<type>_replica.go")
)

func main() {
	flag.Parse()

	if *typeNames == "" {
		fmt.Fprintln(os.Stderr, "replicagen: -type flag is required")
		os.Exit(1)
	}
	if *kindIDs == "" {
		fmt.Fprintln(os.Stderr, "replicagen: -kind flag is required")
		os.Exit(1)
	}

	types := splitTrim(*typeNames)
	kinds := splitTrim(*kindIDs)
	if len(types) != len(kinds) {
		fmt.Fprintf(os.Stderr, "replicagen: -type has %d entries but -kind has %d\n", len(types), len(kinds))
		os.Exit(1)
	}

	dir := "."
	if args := flag.Args(); len(args) > 0 {
		dir = args[0]
	}

	g := &Generator{types: make(map[string]*TypeInfo)}
	if err := g.parsePackage(dir); err != nil {
		fmt.Fprintf(os.Stderr, "replicagen: %v\n", err)
		os.Exit(1)
	}

	for i, typeName := range types {
		info, ok := g.types[typeName]
		if !ok {
			fmt.Fprintf(os.Stderr, "replicagen: type %q not found\n", typeName)
			os.Exit(1)
		}
		kindVal, err := strconv.Atoi(kinds[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "replicagen: bad -kind value %q: %v\n", kinds[i], err)
			os.Exit(1)
		}
		info.Kind = kindVal
	}

	var buf bytes.Buffer
	if err := g.generate(&buf, types); err != nil {
		fmt.Fprintf(os.Stderr, "replicagen: %v\n", err)
		os.Exit(1)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		fmt.Fprintf(os.Stderr, "replicagen: format error: %v\n%s\n", err, buf.String())
		os.Exit(1)
	}

	outputName := *output
	if outputName == "" {
		baseName := strings.ToLower(types[0]) + "_replica.go"
		outputName = filepath.Join(dir, baseName)
	}
	if err := os.WriteFile(outputName, src, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "replicagen: %v\n", err)
		os.Exit(1)
	}
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Generator collects type information parsed from a package directory.
type Generator struct {
	pkg   string
	types map[string]*TypeInfo
}

// TypeInfo holds everything needed to emit one Replica implementation.
type TypeInfo struct {
	Name   string
	Kind   int
	Fields []FieldInfo
}

// MaskBytes is the number of diff-mask bytes this type needs: one bit
// per field, rounded up to the byte.
func (t *TypeInfo) MaskBytes() int {
	return (len(t.Fields) + 7) / 8
}

// FieldInfo holds parsed information about one replicated field.
type FieldInfo struct {
	Name  string
	Type  string // one of the wirePrimitives keys
	Index int
}

func (g *Generator) parsePackage(dir string) error {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, dir, nil, parser.ParseComments)
	if err != nil {
		return err
	}
	for pkgName, pkg := range pkgs {
		if strings.HasSuffix(pkgName, "_test") {
			continue
		}
		g.pkg = pkgName
		for _, file := range pkg.Files {
			g.parseFile(file)
		}
	}
	return nil
}

func (g *Generator) parseFile(file *ast.File) {
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}
		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				continue
			}

			info := &TypeInfo{Name: typeSpec.Name.Name}
			for _, field := range structType.Fields.List {
				if len(field.Names) == 0 || field.Tag == nil {
					continue
				}
				tag := strings.Trim(field.Tag.Value, "`")
				idx, ok := parseReplicaIndex(tag)
				if !ok {
					continue
				}
				ident, ok := field.Type.(*ast.Ident)
				if !ok {
					continue
				}
				if _, supported := wirePrimitives[ident.Name]; !supported {
					continue
				}
				for _, name := range field.Names {
					if !ast.IsExported(name.Name) {
						continue
					}
					info.Fields = append(info.Fields, FieldInfo{
						Name:  name.Name,
						Type:  ident.Name,
						Index: idx,
					})
				}
			}
			g.types[info.Name] = info
		}
	}
}

// parseReplicaIndex extracts the index from a `replica:"N"` struct tag.
func parseReplicaIndex(tag string) (int, bool) {
	const key = "replica:"
	for _, part := range strings.Split(tag, " ") {
		if strings.HasPrefix(part, key) {
			val := strings.Trim(strings.TrimPrefix(part, key), "\"")
			idx, err := strconv.Atoi(val)
			if err != nil {
				return 0, false
			}
			return idx, true
		}
	}
	return 0, false
}

// wirePrimitive names the replisync read/write helper pair and Go zero
// value for one wire-primitive Go type.
type wirePrimitive struct {
	writeFunc string
	readFunc  string
	cast      string // conversion applied around the write argument / read result
	zero      string
}

var wirePrimitives = map[string]wirePrimitive{
	"int8":   {"WriteUint8", "ReadUint8", "uint8", "int8"},
	"uint8":  {"WriteUint8", "ReadUint8", "", "uint8"},
	"int16":  {"WriteUint16", "ReadUint16", "uint16", "int16"},
	"uint16": {"WriteUint16", "ReadUint16", "", "uint16"},
	"int32":  {"WriteUint32", "ReadUint32", "uint32", "int32"},
	"uint32": {"WriteUint32", "ReadUint32", "", "uint32"},
	"int64":  {"WriteUint64", "ReadUint64", "uint64", "int64"},
	"uint64": {"WriteUint64", "ReadUint64", "", "uint64"},
	"bool":   {"WriteUint8", "ReadUint8", "bool", "bool"},
}

func (g *Generator) generate(buf *bytes.Buffer, types []string) error {
	tmpl, err := template.New("replica").Funcs(template.FuncMap{
		"writeExpr": writeExpr,
		"readExpr":  readExpr,
		"lower":     strings.ToLower,
	}).Parse(replicaTemplate)
	if err != nil {
		return err
	}

	data := struct {
		Package string
		Types   []*TypeInfo
	}{
		Package: g.pkg,
		Types:   make([]*TypeInfo, 0, len(types)),
	}
	for _, name := range types {
		data.Types = append(data.Types, g.types[name])
	}
	return tmpl.Execute(buf, data)
}

// writeExpr renders the statement that writes fieldExpr of field's type
// to writer w.
func writeExpr(f FieldInfo, fieldExpr, w string) string {
	p := wirePrimitives[f.Type]
	arg := fieldExpr
	switch f.Type {
	case "bool":
		arg = "boolToByte(" + fieldExpr + ")"
	case "int8", "int16", "int32", "int64":
		arg = p.cast + "(" + fieldExpr + ")"
	}
	return fmt.Sprintf("replisync.%s(%s, %s)", p.writeFunc, w, arg)
}

// readExpr renders the expression that reads and converts one value of
// field's type from reader r; callers wrap it with error handling.
func readExpr(f FieldInfo, r string) string {
	p := wirePrimitives[f.Type]
	switch f.Type {
	case "bool":
		return fmt.Sprintf("replisync.%s(%s)", p.readFunc, r)
	case "int8", "int16", "int32", "int64":
		return fmt.Sprintf("replisync.%s(%s)", p.readFunc, r)
	default:
		return fmt.Sprintf("replisync.%s(%s)", p.readFunc, r)
	}
}

const replicaTemplate = `// Code generated by replicagen. DO NOT EDIT.

package {{.Package}}

import (
	"io"

	"github.com/replisync/replisync"
)

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

{{range .Types}}
{{$type := .}}
const Kind{{.Name}} replisync.Kind = {{.Kind}}

func (v *{{.Name}}) Kind() replisync.Kind { return Kind{{.Name}} }

func (v *{{.Name}}) MaskBytes() uint8 { return {{.MaskBytes}} }

{{range .Fields}}
// Set{{.Name}} assigns {{.Name}} and notifies the attached mutator of
// property {{.Index}}.
func (v *{{$type.Name}}) Set{{.Name}}(val {{.Type}}) {
	v.{{.Name}} = val
	v.mutator.Mutate({{.Index}})
}
{{end}}

func (v *{{.Name}}) WriteFull(w io.Writer) error {
	{{range .Fields}}
	if err := {{writeExpr . (printf "v.%s" .Name) "w"}}; err != nil {
		return err
	}
	{{end}}
	return nil
}

func (v *{{.Name}}) WritePartial(mask *replisync.DiffMask, w io.Writer) error {
	{{range .Fields}}
	if mask.IsSet({{.Index}}) {
		if err := {{writeExpr . (printf "v.%s" .Name) "w"}}; err != nil {
			return err
		}
	}
	{{end}}
	return nil
}

func (v *{{.Name}}) ReadFull(r io.Reader) error {
	{{range .Fields}}
	{{lower .Name}}Raw, err := {{readExpr . "r"}}
	if err != nil {
		return err
	}
	{{if eq .Type "bool"}}v.{{.Name}} = {{lower .Name}}Raw != 0
	{{else if or (eq .Type "int8") (eq .Type "int16") (eq .Type "int32") (eq .Type "int64")}}v.{{.Name}} = {{.Type}}({{lower .Name}}Raw)
	{{else}}v.{{.Name}} = {{lower .Name}}Raw
	{{end}}
	{{end}}
	return nil
}

func (v *{{.Name}}) ReadPartial(mask *replisync.DiffMask, r io.Reader, _ uint16) error {
	{{range .Fields}}
	if mask.IsSet({{.Index}}) {
		{{lower .Name}}Raw, err := {{readExpr . "r"}}
		if err != nil {
			return err
		}
		{{if eq .Type "bool"}}v.{{.Name}} = {{lower .Name}}Raw != 0
		{{else if or (eq .Type "int8") (eq .Type "int16") (eq .Type "int32") (eq .Type "int64")}}v.{{.Name}} = {{.Type}}({{lower .Name}}Raw)
		{{else}}v.{{.Name}} = {{lower .Name}}Raw
		{{end}}
	}
	{{end}}
	return nil
}

func (v *{{.Name}}) Equals(other replisync.Replica) bool {
	o, ok := other.(*{{.Name}})
	if !ok {
		return false
	}
	return {{range $i, $f := .Fields}}{{if $i}} &&
		{{end}}v.{{$f.Name}} == o.{{$f.Name}}{{end}}
}

// Mirror copies fields directly, bypassing the mutator: snapping a
// pawn's shadow copy back onto its authoritative twin must not itself
// look like a local prediction.
func (v *{{.Name}}) Mirror(other replisync.Replica) {
	o := other.(*{{.Name}})
	{{range .Fields}}v.{{.Name}} = o.{{.Name}}
	{{end}}
}

func (v *{{.Name}}) Clone() replisync.Replica {
	return &{{.Name}}{
		{{range .Fields}}{{.Name}}: v.{{.Name}},
		{{end}}mutator: replisync.NoopMutator,
	}
}

func (v *{{.Name}}) AttachMutator(m replisync.PropertyMutator) {
	v.mutator = m
}

// Build{{.Name}} is the replisync.ReplicaBuilder for Kind{{.Name}}.
func Build{{.Name}}(r io.Reader) (replisync.Replica, error) {
	v := &{{.Name}}{mutator: replisync.NoopMutator}
	if err := v.ReadFull(r); err != nil {
		return nil, err
	}
	return v, nil
}
{{end}}
`
