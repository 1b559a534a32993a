// Package load extracts record definitions from user packages. A record
// definition is any struct type that embeds rowguard.Base; its fields
// and their rowguard struct tags become the descriptor table emitted by
// the generator.
package load

import (
	"context"
	"fmt"
	"go/types"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
)

// basePkg is the import path of the package providing Base.
const basePkg = "github.com/rowguard/rowguard"

// Config is the loader configuration.
type Config struct {
	// Paths are the package patterns to scan, as accepted by the build
	// system (a directory or an import path).
	Paths []string

	// Names optionally restricts loading to the given type names.
	Names []string

	// BuildFlags are extra flags handed to the build system.
	BuildFlags []string
}

// Spec is the result of scanning one package.
type Spec struct {
	PkgPath string    // Import path of the scanned package.
	Package string    // Package name, used as the default output package.
	Schemas []*Schema // Record definitions, sorted by name.
}

// Schema is one record definition.
type Schema struct {
	Name   string   // Go type name.
	Table  string   // Backing table, pluralized snake-case of Name.
	Pos    string   // Source position, for error reporting.
	Fields []*Field // Fields in declaration order.
}

// Field is one persisted field of a record definition.
type Field struct {
	Name        string // Public field name (snake-case of the Go name).
	GoName      string // Struct field name.
	Column      string // Backing column; defaults to Name.
	Type        string // Go type, e.g. "int", "string", "time.Time".
	Identifying bool   // Tagged with "id"; accessible under Deny.
	Auto        bool   // Tagged with "auto"; database assigned.
}

// Load scans the configured paths concurrently and merges the results.
// Every scanned package must contain at least one record definition.
func (c *Config) Load(ctx context.Context) ([]*Spec, error) {
	if len(c.Paths) == 0 {
		return nil, fmt.Errorf("load: no paths given")
	}
	var (
		mu    sync.Mutex
		specs []*Spec
	)
	eg, ctx := errgroup.WithContext(ctx)
	for _, path := range c.Paths {
		path := path
		eg.Go(func() error {
			spec, err := c.loadOne(ctx, path)
			if err != nil {
				return err
			}
			mu.Lock()
			specs = append(specs, spec)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].PkgPath < specs[j].PkgPath })
	return specs, nil
}

func (c *Config) loadOne(ctx context.Context, path string) (*Spec, error) {
	pkgs, err := packages.Load(&packages.Config{
		Context:    ctx,
		Mode:       packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax | packages.NeedFiles,
		BuildFlags: c.BuildFlags,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("load: %s: expected one package, got %d", path, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("load: %s: %v", path, pkg.Errors[0])
	}
	spec := &Spec{PkgPath: pkg.PkgPath, Package: pkg.Name}
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		if len(c.Names) > 0 && !containsName(c.Names, name) {
			continue
		}
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		st, ok := tn.Type().Underlying().(*types.Struct)
		if !ok || !embedsBase(st) {
			continue
		}
		schema, err := buildSchema(pkg, tn, st)
		if err != nil {
			return nil, err
		}
		spec.Schemas = append(spec.Schemas, schema)
	}
	if len(spec.Schemas) == 0 {
		return nil, fmt.Errorf("load: %s: no record definitions found (structs embedding %s.Base)", path, basePkg)
	}
	return spec, nil
}

// embedsBase reports whether the struct embeds rowguard.Base.
func embedsBase(st *types.Struct) bool {
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Embedded() {
			continue
		}
		named, ok := f.Type().(*types.Named)
		if !ok {
			continue
		}
		obj := named.Obj()
		if obj.Name() == "Base" && obj.Pkg() != nil && obj.Pkg().Path() == basePkg {
			return true
		}
	}
	return false
}

func buildSchema(pkg *packages.Package, tn *types.TypeName, st *types.Struct) (*Schema, error) {
	schema := &Schema{
		Name:  tn.Name(),
		Table: inflect.Pluralize(inflect.Underscore(tn.Name())),
		Pos:   pkg.Fset.Position(tn.Pos()).String(),
	}
	for i := 0; i < st.NumFields(); i++ {
		sf := st.Field(i)
		if sf.Embedded() {
			continue
		}
		tag := reflect.StructTag(st.Tag(i)).Get("rowguard")
		if tag == "-" {
			continue
		}
		// The generator emits exported accessors named after the field;
		// exported struct fields would collide with them.
		if sf.Exported() {
			return nil, fmt.Errorf("load: %s: field %s.%s must be unexported; the accessors are generated", schema.Pos, schema.Name, sf.Name())
		}
		f, err := buildField(sf, tag)
		if err != nil {
			return nil, fmt.Errorf("load: %s: %s.%s: %w", schema.Pos, schema.Name, sf.Name(), err)
		}
		schema.Fields = append(schema.Fields, f)
	}
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("load: %s: %s has no persisted fields", schema.Pos, schema.Name)
	}
	return schema, nil
}

func buildField(sf *types.Var, tag string) (*Field, error) {
	typ, err := fieldType(sf.Type())
	if err != nil {
		return nil, err
	}
	f := &Field{
		Name:   inflect.Underscore(sf.Name()),
		GoName: sf.Name(),
		Type:   typ,
	}
	f.Column = f.Name
	parts := strings.Split(tag, ",")
	if len(parts) > 0 && parts[0] != "" {
		f.Column = parts[0]
	}
	for _, opt := range parts[1:] {
		switch opt {
		case "id":
			f.Identifying = true
		case "auto":
			f.Auto = true
		case "":
		default:
			return nil, fmt.Errorf("unknown tag option %q", opt)
		}
	}
	return f, nil
}

// fieldType maps a persisted field type to its Go source form. Only
// scannable types are accepted.
func fieldType(t types.Type) (string, error) {
	switch t := t.(type) {
	case *types.Basic:
		switch t.Kind() {
		case types.Bool, types.String,
			types.Int, types.Int8, types.Int16, types.Int32, types.Int64,
			types.Uint, types.Uint8, types.Uint16, types.Uint32, types.Uint64,
			types.Float32, types.Float64:
			return t.Name(), nil
		}
	case *types.Named:
		obj := t.Obj()
		if obj.Pkg() != nil && obj.Pkg().Path() == "time" && obj.Name() == "Time" {
			return "time.Time", nil
		}
	case *types.Slice:
		if b, ok := t.Elem().(*types.Basic); ok && b.Kind() == types.Byte {
			return "[]byte", nil
		}
	}
	return "", fmt.Errorf("unsupported field type %s", t)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
