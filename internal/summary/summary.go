// Package summary condenses what a recovered handler does by following
// trivial forwarding calls. It reads bodies through ir.Program and never
// mutates them.
package summary

import (
	"log/slog"
	"strings"

	"github.com/roach88/binderscan/internal/ir"
)

// DefaultMaxChainDepth bounds SingleInvokeChain.
const DefaultMaxChainDepth = 10

// DefaultIgnoredClasses are infrastructure classes whose calls never count
// as the handler's real work.
var DefaultIgnoredClasses = []string{
	"android.util.Log",
	"android.util.Slog",
	"android.os.Binder",
	"android.os.Parcel",
	"android.os.UserHandle",
	"android.os.PermissionEnforcer",
	"android.os.RemoteCallbackList",
	"android.content.Context",
}

// DefaultIgnoredMethods are accessor names skipped regardless of class.
var DefaultIgnoredMethods = []string{"getInstance", "asInterface", "printStackTrace"}

// DefaultLoggingClasses may be called by a body that still counts as empty.
var DefaultLoggingClasses = []string{"android.util.Log", "android.util.Slog"}

// DefaultSkippedPackages are package prefixes Callees does not expand.
var DefaultSkippedPackages = []string{"java.", "sun.", "android."}

// syntheticAccessorPrefix marks compiler-generated nest-mate accessors.
const syntheticAccessorPrefix = "-$$Nest$"

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithMaxChainDepth sets the maximum SingleInvokeChain length.
func WithMaxChainDepth(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// WithIgnoredClasses replaces the ignored class list.
func WithIgnoredClasses(names ...string) Option {
	return func(s *Summarizer) { s.ignoredClasses = toSet(names) }
}

// WithIgnoredMethods replaces the ignored method-name list.
func WithIgnoredMethods(names ...string) Option {
	return func(s *Summarizer) { s.ignoredMethods = toSet(names) }
}

// WithLogger sets the logger for ambiguous implementation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summarizer) { s.logger = l }
}

// Summarizer answers questions about call structure over one program.
// It is safe for concurrent use.
type Summarizer struct {
	program        *ir.Program
	maxDepth       int
	ignoredClasses map[string]bool
	ignoredMethods map[string]bool
	loggingClasses map[string]bool
	logger         *slog.Logger
}

// New creates a Summarizer for p.
func New(p *ir.Program, opts ...Option) *Summarizer {
	s := &Summarizer{
		program:        p,
		maxDepth:       DefaultMaxChainDepth,
		ignoredClasses: toSet(DefaultIgnoredClasses),
		ignoredMethods: toSet(DefaultIgnoredMethods),
		loggingClasses: toSet(DefaultLoggingClasses),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// SingleInvoke returns the only significant call in body, or nil when the
// body makes none or more than one. Calls into java.*, infrastructure
// classes, ignored accessors and synthetic field accessors are not
// significant.
func (s *Summarizer) SingleInvoke(body *ir.Body) *ir.InvokeExpr {
	var found *ir.InvokeExpr
	for _, blk := range body.Blocks {
		for _, st := range blk.Stmts {
			call := ir.StmtInvoke(st)
			if call == nil || call.Method == nil || s.ignored(call.Method) {
				continue
			}
			if found != nil {
				return nil
			}
			found = call
		}
	}
	return found
}

func (s *Summarizer) ignored(m *ir.Method) bool {
	class := m.ClassName()
	if strings.HasPrefix(class, "java.") ||
		strings.HasPrefix(m.Name, syntheticAccessorPrefix+"f") ||
		strings.HasPrefix(m.Name, syntheticAccessorPrefix+"sf") {
		return true
	}
	if s.ignoredClasses[class] || s.ignoredMethods[m.Name] {
		return true
	}
	// Vendor stubs expose their singleton through get/getInstance.
	return m.Class != nil && strings.HasSuffix(m.Class.ShortName(), "Stub") &&
		(m.Name == "getInstance" || m.Name == "get")
}

// SingleImpl returns the unique concrete implementation of m. Concrete,
// native and phantom methods are returned as-is; an abstract method of an
// interface or abstract class resolves to the one implementer that
// overrides it. Zero or several candidates leave m unchanged.
func (s *Summarizer) SingleImpl(m *ir.Method) *ir.Method {
	if m.IsConcrete() || m.Flags.Has(ir.FlagNative) || m.Class == nil {
		return m
	}
	c := m.Class
	sig := m.Signature()
	var impls []*ir.Method
	switch {
	case c.IsInterface():
		for _, k := range s.program.ImplementersOf(c.Name) {
			// Generated stubs and default implementations are not services.
			if strings.HasPrefix(k.Name, c.Name+"$Stub") || strings.HasPrefix(k.Name, c.Name+"$Default") {
				continue
			}
			if impl := k.Method(sig); impl != nil && impl.IsConcrete() {
				impls = append(impls, impl)
			}
		}
	case c.IsAbstract():
		for _, k := range s.program.SubclassesOf(c.Name) {
			if impl := k.Method(sig); impl != nil && impl.IsConcrete() {
				impls = append(impls, impl)
			}
		}
	default:
		return m
	}

	switch len(impls) {
	case 1:
		return impls[0]
	case 0:
		s.logger.Warn("no concrete implementation", "method", m.Key())
	default:
		attrs := []any{"method", m.Key(), "count", len(impls)}
		if len(impls) <= 5 {
			keys := make([]string, len(impls))
			for i, impl := range impls {
				keys[i] = impl.Key()
			}
			attrs = append(attrs, "implementations", keys)
		}
		s.logger.Warn("multiple concrete implementations", attrs...)
	}
	return m
}

// SingleInvokeChain follows single significant calls from body: each step
// takes the body's only significant call, resolves it to its single
// implementation and continues in that method. The chain stops at a body
// with zero or several calls, a non-concrete callee, a repeated method or
// the depth limit. A repeated method is included once more to show the
// loop.
func (s *Summarizer) SingleInvokeChain(body *ir.Body) []*ir.Method {
	var chain []*ir.Method
	seen := make(map[*ir.Method]bool)
	current := body
	for range s.maxDepth {
		call := s.SingleInvoke(current)
		if call == nil {
			break
		}
		callee := s.SingleImpl(call.Method)
		if !callee.IsConcrete() {
			break
		}
		chain = append(chain, callee)
		if seen[callee] {
			break
		}
		seen[callee] = true

		next, err := callee.Body()
		if err != nil {
			s.logger.Debug("chain stops at unreadable body", "method", callee.Key(), "error", err)
			break
		}
		current = next
	}
	return chain
}

// IsEmpty reports whether body does nothing but log and return.
func (s *Summarizer) IsEmpty(body *ir.Body) bool {
	for _, blk := range body.Blocks {
		for _, st := range blk.Stmts {
			if call := ir.StmtInvoke(st); call != nil {
				if call.Method == nil || !s.loggingClasses[call.Method.ClassName()] {
					return false
				}
				continue
			}
			if _, ok := st.(*ir.Return); !ok {
				return false
			}
		}
	}
	return true
}

// Callees expands the call graph breadth-first from entry for depth
// levels and returns every method reached, in discovery order. Calls into
// skipped packages are not followed, and methods whose bodies cannot be
// read contribute no callees.
func (s *Summarizer) Callees(entry *ir.Method, depth int, skipped ...string) []*ir.Method {
	if skipped == nil {
		skipped = DefaultSkippedPackages
	}
	var all []*ir.Method
	seen := make(map[*ir.Method]bool)
	current := []*ir.Method{entry}
	for range depth {
		var next []*ir.Method
		for _, m := range current {
			for _, callee := range directCallees(m, skipped) {
				if !seen[callee] {
					seen[callee] = true
					next = append(next, callee)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		all = append(all, next...)
		current = next
	}
	return all
}

func directCallees(m *ir.Method, skipped []string) []*ir.Method {
	body, err := m.Body()
	if err != nil {
		return nil
	}
	var out []*ir.Method
	dedup := make(map[*ir.Method]bool)
	for _, blk := range body.Blocks {
		for _, st := range blk.Stmts {
			call := ir.StmtInvoke(st)
			if call == nil || call.Method == nil || dedup[call.Method] || inPackages(call.Method, skipped) {
				continue
			}
			dedup[call.Method] = true
			out = append(out, call.Method)
		}
	}
	return out
}

func inPackages(m *ir.Method, prefixes []string) bool {
	pkg := ""
	if m.Class != nil {
		pkg = m.Class.Package() + "."
	}
	for _, p := range prefixes {
		if strings.HasPrefix(pkg, p) {
			return true
		}
	}
	return false
}
