package ir

import (
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

// DefaultBodyCacheSize bounds the number of lifted bodies kept in memory.
const DefaultBodyCacheSize = 4096

// BodySource lifts method bodies on demand. Implementations must be safe
// for concurrent use and must return a fresh, fully linked Body.
type BodySource interface {
	HasBody(m *Method) bool
	LoadBody(m *Method) (*Body, error)
}

// Program is the set of classes under analysis.
//
// Bodies are lifted lazily and kept in a bounded LRU; concurrent requests
// for the same body share one lift. Once returned a Body is never mutated
// by the engine, so it may be read from several goroutines.
type Program struct {
	classes map[string]*Class
	order   []*Class
	source  BodySource
	bodies  *lru.Cache[string, *Body]
	lifts   singleflight.Group
	logger  *slog.Logger
}

// ProgramOption configures a Program.
type ProgramOption func(*Program) error

// WithBodyCache sets the LRU capacity for lifted bodies.
func WithBodyCache(size int) ProgramOption {
	return func(p *Program) error {
		c, err := lru.New[string, *Body](size)
		if err != nil {
			return fmt.Errorf("body cache: %w", err)
		}
		p.bodies = c
		return nil
	}
}

// WithProgramLogger sets the logger used for lift diagnostics.
func WithProgramLogger(l *slog.Logger) ProgramOption {
	return func(p *Program) error {
		p.logger = l
		return nil
	}
}

// NewProgram creates an empty program backed by src. src may be nil when
// every method body is attached directly.
func NewProgram(src BodySource, opts ...ProgramOption) (*Program, error) {
	p := &Program{
		classes: make(map[string]*Class),
		source:  src,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.bodies == nil {
		if err := WithBodyCache(DefaultBodyCacheSize)(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetSource replaces the body source. Front ends that need the program
// while building their source call this once before analysis starts.
func (p *Program) SetSource(src BodySource) { p.source = src }

// AddClass registers c. Class names are NFC-normalised so lookups are
// insensitive to Unicode composition.
func (p *Program) AddClass(c *Class) error {
	c.Name = norm.NFC.String(c.Name)
	if _, ok := p.classes[c.Name]; ok {
		return fmt.Errorf("duplicate class %s", c.Name)
	}
	c.program = p
	for _, m := range c.Methods {
		m.Class = c
	}
	p.classes[c.Name] = c
	p.order = append(p.order, c)
	return nil
}

// Class returns the class called name, or nil.
func (p *Program) Class(name string) *Class {
	return p.classes[norm.NFC.String(name)]
}

// Classes returns every class in registration order.
func (p *Program) Classes() []*Class {
	out := make([]*Class, len(p.order))
	copy(out, p.order)
	return out
}

// Phantom returns the class called name, creating a phantom placeholder
// when it was never declared.
func (p *Program) Phantom(name string) *Class {
	if c := p.Class(name); c != nil {
		return c
	}
	c := &Class{Name: name, Flags: FlagPhantom}
	// AddClass cannot fail: the name was just checked.
	_ = p.AddClass(c)
	return c
}

// Method resolves a "class#signature" key.
func (p *Program) Method(key string) *Method {
	class, sig, ok := strings.Cut(key, "#")
	if !ok {
		return nil
	}
	c := p.Class(class)
	if c == nil {
		return nil
	}
	return c.Method(sig)
}

// CachedBodies reports how many lifted bodies are held in memory.
func (p *Program) CachedBodies() int { return p.bodies.Len() }

func (p *Program) loadBody(m *Method) (*Body, error) {
	key := m.Key()
	if b, ok := p.bodies.Get(key); ok {
		return b, nil
	}
	v, err, _ := p.lifts.Do(key, func() (any, error) {
		if b, ok := p.bodies.Get(key); ok {
			return b, nil
		}
		b, err := p.source.LoadBody(m)
		if err != nil {
			return nil, fmt.Errorf("lift %s: %w", key, err)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("lift %s: invalid body: %w", key, err)
		}
		p.bodies.Add(key, b)
		p.logger.Debug("lifted body", "method", key, "blocks", len(b.Blocks))
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Body), nil
}
