package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/binderscan/internal/ir"
)

// programDoc is the top level of a YAML program fixture.
type programDoc struct {
	Classes []classDoc `yaml:"classes"`
}

type classDoc struct {
	Name       string      `yaml:"name"`
	Super      string      `yaml:"super"`
	Outer      string      `yaml:"outer"`
	Interfaces []string    `yaml:"interfaces"`
	Flags      []string    `yaml:"flags"`
	Methods    []methodDoc `yaml:"methods"`
}

type methodDoc struct {
	Name    string   `yaml:"name"`
	Params  []string `yaml:"params"`
	Returns string   `yaml:"returns"`
	Flags   []string `yaml:"flags"`
	Body    *bodyDoc `yaml:"body"`
}

type bodyDoc struct {
	This   string     `yaml:"this"`
	Args   []string   `yaml:"args"`
	Locals yaml.Node  `yaml:"locals"`
	Entry  *int       `yaml:"entry"`
	Blocks []blockDoc `yaml:"blocks"`
}

type blockDoc struct {
	ID    int         `yaml:"id"`
	Falls *int        `yaml:"falls"`
	Stmts []yaml.Node `yaml:"stmts"`
}

// CompileError reports a problem in a program fixture. Line and Column
// are 1-based and zero when unknown.
type CompileError struct {
	File    string
	Field   string
	Message string
	Line    int
	Column  int
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Field, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsCompileError reports whether err is a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// Option configures Compile.
type Option func(*options)

type options struct {
	file      string
	cacheSize int
	logger    *slog.Logger
}

// WithFilename sets the name used in error positions.
func WithFilename(name string) Option { return func(o *options) { o.file = name } }

// WithBodyCache sets the program's lifted-body cache capacity.
func WithBodyCache(size int) Option { return func(o *options) { o.cacheSize = size } }

// WithLogger sets the logger passed to the program.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// CompileFile reads and compiles a YAML program fixture.
func CompileFile(path string, opts ...Option) (*ir.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open program: %w", err)
	}
	defer f.Close()
	return Compile(f, append([]Option{WithFilename(path)}, opts...)...)
}

// Compile decodes a YAML program fixture into an ir.Program.
//
// Class and method declarations are built eagerly; unknown fields are
// rejected. Method bodies stay in their YAML form and are lifted on first
// access, so malformed statements surface as *CompileError from
// Method.Body. Validate lifts every body to report them up front.
//
// Methods referenced by calls but declared nowhere become phantom methods
// on phantom classes.
func Compile(r io.Reader, opts ...Option) (*ir.Program, error) {
	o := options{cacheSize: ir.DefaultBodyCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	var doc programDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &CompileError{File: o.file, Field: "yaml", Message: err.Error()}
	}

	src := &fixtureSource{file: o.file, bodies: make(map[string]*bodyDoc)}
	p, err := ir.NewProgram(src, ir.WithBodyCache(o.cacheSize), ir.WithProgramLogger(o.logger))
	if err != nil {
		return nil, err
	}
	src.program = p

	for i, cd := range doc.Classes {
		field := fmt.Sprintf("classes[%d]", i)
		c, err := declareClass(cd, field, o.file)
		if err != nil {
			return nil, err
		}
		if err := p.AddClass(c); err != nil {
			return nil, &CompileError{File: o.file, Field: field, Message: err.Error()}
		}
		for j, md := range cd.Methods {
			if md.Body != nil {
				key := c.Methods[j].Key()
				src.bodies[key] = md.Body
				src.order = append(src.order, key)
			}
		}
	}

	if err := src.declareReferences(); err != nil {
		return nil, err
	}
	return p, nil
}

func declareClass(cd classDoc, field, file string) (*ir.Class, error) {
	if cd.Name == "" {
		return nil, &CompileError{File: file, Field: field + ".name", Message: "class name is required"}
	}
	c := &ir.Class{Name: cd.Name, Super: cd.Super, Outer: cd.Outer, Interfaces: cd.Interfaces}
	flags, err := parseFlags(cd.Flags)
	if err != nil {
		return nil, &CompileError{File: file, Field: field + ".flags", Message: err.Error()}
	}
	c.Flags = flags

	for j, md := range cd.Methods {
		mfield := fmt.Sprintf("%s.methods[%d]", field, j)
		if md.Name == "" {
			return nil, &CompileError{File: file, Field: mfield + ".name", Message: "method name is required"}
		}
		m := &ir.Method{Name: md.Name, Return: ir.Type(md.Returns)}
		if m.Return == "" {
			m.Return = ir.TypeVoid
		}
		for _, p := range md.Params {
			m.Params = append(m.Params, ir.Type(p))
		}
		if m.Flags, err = parseFlags(md.Flags); err != nil {
			return nil, &CompileError{File: file, Field: mfield + ".flags", Message: err.Error()}
		}
		if md.Body != nil && (m.Flags.Has(ir.FlagAbstract) || m.Flags.Has(ir.FlagNative)) {
			return nil, &CompileError{File: file, Field: mfield + ".body",
				Message: fmt.Sprintf("%s method %s cannot have a body", m.Flags, md.Name)}
		}
		if err := c.AddMethod(m); err != nil {
			return nil, &CompileError{File: file, Field: mfield, Message: err.Error()}
		}
	}
	return c, nil
}

func parseFlags(names []string) (ir.Flags, error) {
	var out ir.Flags
	for _, n := range names {
		f, err := ir.ParseFlag(n)
		if err != nil {
			return 0, err
		}
		if f == ir.FlagPhantom {
			return 0, fmt.Errorf("flag %q is reserved", n)
		}
		out |= f
	}
	return out, nil
}
