package gossa

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/roach88/binderscan/internal/ir"
)

// Option configures Load.
type Option func(*options)

type options struct {
	cacheSize int
	logger    *slog.Logger
	importer  types.Importer
}

// WithBodyCache sets the program's lifted-body cache capacity.
func WithBodyCache(size int) Option { return func(o *options) { o.cacheSize = size } }

// WithLogger sets the logger passed to the program.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithImporter sets the importer used to type-check imports. The default
// type-checks imported packages from source.
func WithImporter(imp types.Importer) Option { return func(o *options) { o.importer = imp } }

// Load lifts the Go package at path, which is a single .go file or a
// directory whose non-test .go files form one package.
func Load(path string, opts ...Option) (*ir.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	names := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		names = names[:0]
		for _, e := range entries {
			n := e.Name()
			if !e.IsDir() && strings.HasSuffix(n, ".go") && !strings.HasSuffix(n, "_test.go") {
				names = append(names, filepath.Join(path, n))
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("load %s: no Go files", path)
		}
	}

	fset := token.NewFileSet()
	files := make([]*ast.File, 0, len(names))
	for _, n := range names {
		f, err := parser.ParseFile(fset, n, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		files = append(files, f)
	}
	return build(fset, files, opts)
}

// LoadSource lifts a package made of one in-memory file.
func LoadSource(filename, src string, opts ...Option) (*ir.Program, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return build(fset, []*ast.File{f}, opts)
}

func build(fset *token.FileSet, files []*ast.File, opts []Option) (*ir.Program, error) {
	o := options{cacheSize: ir.DefaultBodyCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.importer == nil {
		o.importer = importer.ForCompiler(fset, "source", nil)
	}

	name := files[0].Name.Name
	for _, f := range files[1:] {
		if f.Name.Name != name {
			return nil, fmt.Errorf("files declare packages %s and %s", name, f.Name.Name)
		}
	}
	pkg := types.NewPackage(name, name)
	ssaPkg, _, err := ssautil.BuildPackage(&types.Config{Importer: o.importer}, fset, pkg, files, ssa.InstantiateGenerics)
	if err != nil {
		return nil, fmt.Errorf("type-check %s: %w", name, err)
	}

	src := &ssaSource{funcs: make(map[string]*ssa.Function)}
	p, err := ir.NewProgram(src, ir.WithBodyCache(o.cacheSize), ir.WithProgramLogger(o.logger))
	if err != nil {
		return nil, err
	}
	src.program = p

	d := &declarer{program: p, source: src, pkg: ssaPkg}
	if err := d.declareMembers(); err != nil {
		return nil, err
	}
	if err := d.declareReferences(); err != nil {
		return nil, err
	}
	o.logger.Debug("loaded go package", "package", name, "classes", len(p.Classes()), "bodies", len(src.order))
	return p, nil
}

// ssaSource lifts bodies from built SSA functions. It is read-only after
// build returns.
type ssaSource struct {
	program *ir.Program
	funcs   map[string]*ssa.Function
	order   []*ssa.Function
}

// HasBody implements ir.BodySource.
func (s *ssaSource) HasBody(m *ir.Method) bool {
	_, ok := s.funcs[m.Key()]
	return ok
}

// LoadBody implements ir.BodySource.
func (s *ssaSource) LoadBody(m *ir.Method) (*ir.Body, error) {
	fn, ok := s.funcs[m.Key()]
	if !ok {
		return nil, ir.ErrNoBody
	}
	return newLifter(s.program, fn).lift()
}

type declarer struct {
	program *ir.Program
	source  *ssaSource
	pkg     *ssa.Package
}

func (d *declarer) declareMembers() error {
	names := make([]string, 0, len(d.pkg.Members))
	for n := range d.pkg.Members {
		names = append(names, n)
	}
	slices.Sort(names)

	var ifaces []*types.Named
	for _, n := range names {
		if t, ok := d.pkg.Members[n].(*ssa.Type); ok {
			if named, ok := t.Type().(*types.Named); ok {
				if it, ok := named.Underlying().(*types.Interface); ok && it.NumMethods() > 0 {
					ifaces = append(ifaces, named)
				}
			}
		}
	}

	for _, n := range names {
		t, ok := d.pkg.Members[n].(*ssa.Type)
		if !ok {
			continue
		}
		named, ok := t.Type().(*types.Named)
		if !ok {
			continue
		}
		if err := d.declareType(named, ifaces); err != nil {
			return err
		}
	}
	for _, n := range names {
		if fn, ok := d.pkg.Members[n].(*ssa.Function); ok {
			if err := d.declareFunc(fn, ir.FlagStatic); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *declarer) declareType(named *types.Named, ifaces []*types.Named) error {
	c := &ir.Class{Name: string(typeName(named))}

	if it, ok := named.Underlying().(*types.Interface); ok {
		c.Flags = ir.FlagInterface
		for i := 0; i < it.NumMethods(); i++ {
			fn := it.Method(i)
			params, ret := signature(fn.Type().(*types.Signature))
			m := &ir.Method{Name: fn.Name(), Params: params, Return: ret, Flags: ir.FlagAbstract}
			if err := c.AddMethod(m); err != nil {
				return err
			}
		}
		return d.program.AddClass(c)
	}

	if st, ok := named.Underlying().(*types.Struct); ok {
		for i := 0; i < st.NumFields(); i++ {
			f := st.Field(i)
			if _, isNamed := types.Unalias(deref(f.Type())).(*types.Named); f.Embedded() && isNamed {
				c.Super = string(typeName(f.Type()))
				break
			}
		}
	}
	generic := named.TypeParams().Len() > 0
	if !generic {
		for _, iface := range ifaces {
			it := iface.Underlying().(*types.Interface)
			if types.Implements(named, it) || types.Implements(types.NewPointer(named), it) {
				c.Interfaces = append(c.Interfaces, string(typeName(iface)))
			}
		}
	}
	if err := d.program.AddClass(c); err != nil {
		return err
	}
	if generic {
		return nil
	}
	for i := 0; i < named.NumMethods(); i++ {
		fn := d.pkg.Prog.FuncValue(named.Method(i))
		if fn == nil {
			continue
		}
		if err := d.declareMethod(c, fn, 0); err != nil {
			return err
		}
	}
	return nil
}

// declareFunc declares a package function and, recursively, its closures.
func (d *declarer) declareFunc(fn *ssa.Function, flags ir.Flags) error {
	c := d.program.Class(packageClass(d.pkg))
	if c == nil {
		c = &ir.Class{Name: packageClass(d.pkg)}
		if err := d.program.AddClass(c); err != nil {
			return err
		}
	}
	if err := d.declareMethod(c, fn, flags); err != nil {
		return err
	}
	for _, anon := range fn.AnonFuncs {
		if err := d.declareFunc(anon, ir.FlagStatic|ir.FlagSynthetic); err != nil {
			return err
		}
	}
	return nil
}

func (d *declarer) declareMethod(c *ir.Class, fn *ssa.Function, flags ir.Flags) error {
	ref := funcRef(fn)
	m := &ir.Method{Name: ref.name, Params: ref.params, Return: ref.ret, Flags: flags}
	if !token.IsExported(fn.Name()) {
		m.Flags |= ir.FlagPrivate
	}
	if len(fn.Blocks) == 0 || fn.TypeParams().Len() > 0 {
		m.Flags |= ir.FlagNative
	}
	if err := c.AddMethod(m); err != nil {
		return err
	}
	if !m.Flags.Has(ir.FlagNative) {
		d.source.funcs[m.Key()] = fn
		d.source.order = append(d.source.order, fn)
	}
	return nil
}

// declareReferences creates phantom methods for every callee a body can
// reach, so lifting never mutates the program.
func (d *declarer) declareReferences() error {
	for _, fn := range d.source.order {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				site, ok := callOf(instr)
				if !ok {
					continue
				}
				if err := d.ensure(site.ref); err != nil {
					return fmt.Errorf("%s: %w", fn, err)
				}
			}
		}
	}
	return nil
}

func (d *declarer) ensure(ref methodRef) error {
	c := d.program.Phantom(ref.class)
	if d.program.LookupMethod(c, ref.signature()) != nil {
		return nil
	}
	return c.AddMethod(&ir.Method{Name: ref.name, Params: ref.params, Return: ref.ret, Flags: ir.FlagPhantom})
}

func deref(t types.Type) types.Type {
	if p, ok := t.Underlying().(*types.Pointer); ok {
		return p.Elem()
	}
	return t
}
