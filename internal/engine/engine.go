package engine

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/binderscan/internal/ir"
)

// Defaults for resolver options.
const (
	// DefaultMaxRounds caps the frontier rounds spent on one method.
	DefaultMaxRounds = 100

	// InterfaceTransaction is IBinder.INTERFACE_TRANSACTION ("_NTF"). It
	// answers descriptor queries and is never part of a recovered table.
	InterfaceTransaction int64 = 0x5f4e5446

	// DefaultDelegatePattern marks callees that re-dispatch the code.
	DefaultDelegatePattern = "transact"

	// DefaultSplitHelperPrefix and DefaultSplitHelperSuffix recognise
	// helpers the compiler split out of onTransact, e.g. onTransact$foo$.
	DefaultSplitHelperPrefix = "onTransact$"
	DefaultSplitHelperSuffix = "$"

	// DefaultSplitHelperDepth bounds classifier recursion.
	DefaultSplitHelperDepth = 8
)

// DefaultOpaqueClasses are framework classes whose dispatch methods are
// never analysed.
var DefaultOpaqueClasses = []string{"android.os.Binder"}

type options struct {
	maxRounds       int
	sentinel        int64
	delegatePattern string
	opaqueClasses   []string
	splitPrefix     string
	splitSuffix     string
	splitDepth      int
	logger          *slog.Logger
}

func defaultOptions() options {
	return options{
		maxRounds:       DefaultMaxRounds,
		sentinel:        InterfaceTransaction,
		delegatePattern: DefaultDelegatePattern,
		opaqueClasses:   slices.Clone(DefaultOpaqueClasses),
		splitPrefix:     DefaultSplitHelperPrefix,
		splitSuffix:     DefaultSplitHelperSuffix,
		splitDepth:      DefaultSplitHelperDepth,
		logger:          slog.Default(),
	}
}

// Option configures a Resolver or Classifier.
type Option func(*options)

// WithMaxRounds sets the frontier round cap per method. Values below 1
// are raised to 1.
func WithMaxRounds(n int) Option {
	return func(o *options) { o.maxRounds = max(n, 1) }
}

// WithSentinel sets the reserved code that is always skipped.
func WithSentinel(code int64) Option {
	return func(o *options) { o.sentinel = code }
}

// WithDelegatePattern sets the case-insensitive substring a callee name
// must contain to be followed as a delegate.
func WithDelegatePattern(p string) Option {
	return func(o *options) { o.delegatePattern = strings.ToLower(p) }
}

// WithOpaqueClasses replaces the classes whose methods resolve to an
// empty CodeMap.
func WithOpaqueClasses(names ...string) Option {
	return func(o *options) { o.opaqueClasses = slices.Clone(names) }
}

// WithSplitHelper sets the name prefix and suffix of split-out helpers.
func WithSplitHelper(prefix, suffix string) Option {
	return func(o *options) {
		o.splitPrefix = prefix
		o.splitSuffix = suffix
	}
}

// WithSplitHelperDepth bounds classifier recursion.
func WithSplitHelperDepth(n int) Option {
	return func(o *options) { o.splitDepth = max(n, 0) }
}

// WithLogger sets the logger for warnings about skipped codes.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Resolver recovers the dispatch table of a call-handling method.
//
// A Resolver holds configuration only. Resolve never mutates the bodies it
// reads, so one Resolver may serve many goroutines.
type Resolver struct {
	opts       options
	classifier *Classifier
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Resolver{opts: o, classifier: &Classifier{opts: o}}
}

// Sentinel returns the reserved code the resolver skips.
func (r *Resolver) Sentinel() int64 { return r.opts.sentinel }

func (r *Resolver) isOpaque(c *ir.Class) bool {
	return c != nil && slices.Contains(r.opts.opaqueClasses, c.Name)
}

// scanFrame is one method scan suspended on the resolver stack.
type scanFrame struct {
	method *ir.Method
	body   *ir.Body
	code   *ir.Local
	front  *frontier
	budget *RoundBudget

	// pos indexes the current round; stmt is the next statement of the
	// block at pos.
	pos  int
	stmt int
}

// Resolve maps every request code dispatched by m to its handler.
// codeParam selects the parameter carrying the code.
//
// Delegation into other dispatch methods is followed with an explicit
// stack of suspended scans and a visited set owned by this call, so codes
// are discovered in the same order a recursive walk would find them and
// the first transaction found for a code wins.
//
// An error is returned only when m itself cannot be analysed. Problems
// below the root (missing blocks, exhausted budgets, delegates without a
// body) are logged and the affected codes omitted.
func (r *Resolver) Resolve(m *ir.Method, codeParam int) (*CodeMap, error) {
	out := newCodeMapBuilder()
	if r.isOpaque(m.Class) {
		return out.Build(), nil
	}
	root, err := r.newFrame(m, codeParam)
	if err != nil {
		return nil, err
	}
	visited := newVisitedMethods()
	visited.Enter(m)

	stack := []*scanFrame{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		child, done := r.step(top, visited, out)
		switch {
		case child != nil:
			stack = append(stack, child)
		case done:
			stack = stack[:len(stack)-1]
		}
	}

	cm := out.Build()
	r.opts.logger.Debug("resolved dispatch table",
		"method", m.Key(), "codes", cm.Len(), "methods", visited.Len())
	return cm, nil
}

func (r *Resolver) newFrame(m *ir.Method, codeParam int) (*scanFrame, error) {
	body, err := m.Body()
	if err != nil {
		return nil, NewNoBodyError(m.Key(), err)
	}
	code := body.Param(codeParam)
	if code == nil {
		return nil, NewBadParamIndexError(m.Key(), codeParam, len(body.Params))
	}
	f := &scanFrame{
		method: m,
		body:   body,
		code:   code,
		front:  newFrontier(body.Entry),
		budget: NewRoundBudget(r.opts.maxRounds),
	}
	// The entry round is the first one spent. It cannot fail: the budget
	// is at least one.
	_ = f.budget.Spend(m.Key())
	return f, nil
}

// step advances f until it finishes (done) or reaches a delegate that must
// be scanned first (child).
func (r *Resolver) step(f *scanFrame, visited *visitedMethods, out *codeMapBuilder) (child *scanFrame, done bool) {
	for {
		round := f.front.Current()
		if f.pos >= len(round) {
			if !f.front.Advance() {
				return nil, true
			}
			if err := f.budget.Spend(f.method.Key()); err != nil {
				rerr := NewRoundBudgetExceededError(f.method.Key(), err)
				r.opts.logger.Warn("round budget exceeded, keeping partial result",
					"method", f.method.Key(), "pending", len(f.front.Current()), "error", rerr)
				out.Truncate(rerr)
				return nil, true
			}
			f.pos, f.stmt = 0, 0
			continue
		}

		id := round[f.pos]
		blk := f.body.Block(id)
		if blk == nil {
			r.opts.logger.Warn("frontier block not found", "method", f.method.Key(), "block", id.String())
			f.pos, f.stmt = f.pos+1, 0
			continue
		}

		for f.stmt < len(blk.Stmts) {
			s := blk.Stmts[f.stmt]
			f.stmt++
			if c := r.delegate(f, s, visited); c != nil {
				return c, false
			}
		}
		r.branch(f, blk, out)
		f.pos, f.stmt = f.pos+1, 0
	}
}

// delegate returns a frame for the callee when s forwards the code to
// another dispatch method that has not been visited yet.
func (r *Resolver) delegate(f *scanFrame, s ir.Stmt, visited *visitedMethods) *scanFrame {
	call := ir.StmtInvoke(s)
	if call == nil || call.Method == nil {
		return nil
	}
	pos := call.ArgIndex(f.code)
	if pos < 0 || !strings.Contains(strings.ToLower(call.Method.Name), r.opts.delegatePattern) {
		return nil
	}
	callee := call.Method
	if r.isOpaque(callee.Class) {
		return nil
	}
	if !callee.IsConcrete() {
		r.opts.logger.Warn("delegate is not concrete", "method", f.method.Key(), "delegate", callee.Key())
		return nil
	}
	if !visited.Enter(callee) {
		r.opts.logger.Debug("delegation cycle", "method", f.method.Key(), "delegate", callee.Key())
		return nil
	}
	child, err := r.newFrame(callee, pos)
	if err != nil {
		r.opts.logger.Warn("cannot follow delegate", "method", f.method.Key(), "delegate", callee.Key(), "error", err)
		return nil
	}
	return child
}

// branch handles the terminator of blk: dispatch switches and code
// comparisons record transactions, everything else just queues successors.
func (r *Resolver) branch(f *scanFrame, blk *ir.Block, out *codeMapBuilder) {
	switch t := blk.Terminator().(type) {
	case *ir.Switch:
		if isLocal(t.Key, f.code) {
			for _, c := range t.Cases {
				if c.Value == r.opts.sentinel {
					continue
				}
				r.record(f, c.Value, c.Target, out)
			}
			f.front.Push(t.Default)
			return
		}
	case *ir.If:
		if r.compare(f, t, out) {
			return
		}
	}
	for _, s := range blk.Succs {
		f.front.Push(s)
	}
}

// compare handles "code == K" and "code != K". It reports false when the
// condition is not such a comparison, leaving successor queueing to the
// caller.
func (r *Resolver) compare(f *scanFrame, t *ir.If, out *codeMapBuilder) bool {
	if t.Cond == nil {
		return false
	}
	var match, other ir.BlockID
	switch t.Cond.Op {
	case ir.OpEq:
		match, other = t.Then, t.Else
	case ir.OpNe:
		match, other = t.Else, t.Then
	default:
		return false
	}
	code, ok := codeConstant(t.Cond, f.code)
	if !ok {
		return false
	}

	f.front.Push(other)
	mb := f.body.Block(match)
	if mb == nil || len(mb.Preds) != 1 {
		// A merge point also runs code for other requests; it cannot be
		// isolated, so scan it like any other block.
		f.front.Push(match)
		return true
	}
	if code != r.opts.sentinel {
		r.record(f, code, match, out)
	}
	return true
}

// record classifies target and stores the resulting transaction unless
// code was already recovered.
func (r *Resolver) record(f *scanFrame, code int64, target ir.BlockID, out *codeMapBuilder) {
	if out.Has(code) {
		r.opts.logger.Debug("code already recovered", "method", f.method.Key(), "code", code)
		return
	}
	blk := f.body.Block(target)
	if blk == nil {
		err := NewMissingBlockError(f.method.Key(), target.String(), code)
		r.opts.logger.Warn("skipping code", "method", f.method.Key(), "code", code, "block", target.String(), "error", err)
		return
	}
	if callee := r.classifier.Classify(f.method, f.body, blk); callee != nil {
		out.Add(code, Standard{Caller: f.method, Target: callee})
		return
	}
	out.Add(code, Custom{Caller: f.method, Body: f.body, Entry: target})
}

func isLocal(v ir.Value, l *ir.Local) bool {
	got, ok := v.(*ir.Local)
	return ok && got == l
}

// codeConstant extracts K from "code op K" or "K op code".
func codeConstant(e *ir.BinExpr, code *ir.Local) (int64, bool) {
	if isLocal(e.X, code) {
		if k, ok := e.Y.(ir.IntConst); ok {
			return int64(k), true
		}
	}
	if isLocal(e.Y, code) {
		if k, ok := e.X.(ir.IntConst); ok {
			return int64(k), true
		}
	}
	return 0, false
}
