package scan

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/binderscan/internal/config"
	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
	"github.com/roach88/binderscan/internal/store"
	"github.com/roach88/binderscan/internal/summary"
)

// DefaultConfig mirrors the scan defaults of the configuration schema.
var DefaultConfig = config.Scan{
	Workers:         4,
	QueueSize:       128,
	Backoff:         "100ms",
	MaxBackoff:      "2s",
	DispatchClass:   "android.os.Binder",
	DispatchMethod:  "onTransact",
	SyntheticPrefix: "do_txn_code_",
}

// Recorder persists scan results. *store.Store implements it.
type Recorder interface {
	FindOrInsertFirmware(ctx context.Context, fw store.Firmware) (store.Firmware, error)
	BaselineByRelease(ctx context.Context, release int) (store.Firmware, bool, error)
	ClearFirmware(ctx context.Context, firmwareID int64) error
	ServiceExists(ctx context.Context, firmwareID int64, name string) (bool, error)
	TransactionExists(ctx context.Context, firmwareID int64, service, calleeName string) (bool, error)
	WriteService(ctx context.Context, svc store.Service, txns []store.Transaction) error
	WriteScan(ctx context.Context, scan store.Scan) error
}

var _ Recorder = (*store.Store)(nil)

// Option configures a Scanner.
type Option func(*Scanner)

// WithResolver sets the dispatch resolver.
func WithResolver(r *engine.Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithSummarizer sets the call-chain summarizer.
func WithSummarizer(sum *summary.Summarizer) Option {
	return func(s *Scanner) { s.summarizer = sum }
}

// WithConfig sets pool sizing, dispatch method and slice naming.
func WithConfig(cfg config.Scan) Option {
	return func(s *Scanner) { s.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithIDGenerator sets the run id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Scanner) { s.ids = g }
}

// WithClock sets the clock used to time a run.
func WithClock(c Clock) Option {
	return func(s *Scanner) { s.clock = c }
}

// WithServices scans exactly svcs instead of discovering registrations.
func WithServices(svcs ...Service) Option {
	return func(s *Scanner) { s.services = svcs }
}

// WithRegistrars replaces the registration methods Discover looks for.
func WithRegistrars(rs ...Registrar) Option {
	return func(s *Scanner) { s.registrars = rs }
}

// Scanner analyses the services of one program.
type Scanner struct {
	program    *ir.Program
	resolver   *engine.Resolver
	summarizer *summary.Summarizer
	cfg        config.Scan
	logger     *slog.Logger
	ids        IDGenerator
	clock      Clock
	services   []Service
	registrars []Registrar
}

// New creates a Scanner over p.
func New(p *ir.Program, opts ...Option) *Scanner {
	s := &Scanner{
		program:    p,
		cfg:        DefaultConfig,
		logger:     slog.Default(),
		ids:        UUIDv7Generator{},
		clock:      systemClock{},
		registrars: DefaultRegistrars,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = engine.NewResolver(engine.WithLogger(s.logger))
	}
	if s.summarizer == nil {
		s.summarizer = summary.New(p, summary.WithLogger(s.logger))
	}
	return s
}

func (s *Scanner) newPool(ctx context.Context) *Pool {
	return NewPool(ctx, s.cfg.Workers, s.cfg.QueueSize,
		s.cfg.BackoffDuration(), s.cfg.MaxBackoffDuration(), s.logger)
}

// Result is the analysis of one service.
type Result struct {
	Service      store.Service
	Transactions []store.Transaction
}

// Failed reports whether the service or any of its codes failed.
func (r Result) Failed() bool {
	return r.Service.Status != store.ServiceOK || r.failures() > 0
}

func (r Result) failures() int {
	n := 0
	for _, t := range r.Transactions {
		if t.Status != store.TransactionOK {
			n++
		}
	}
	return n
}

// Report summarises a completed run.
type Report struct {
	RunID        string
	Firmware     store.Firmware
	Results      []Result
	Services     int
	Transactions int
	Failures     int
	Elapsed      time.Duration
}

// ByStatus counts services per status.
func (r *Report) ByStatus() map[store.ServiceStatus]int {
	out := make(map[store.ServiceStatus]int)
	for _, res := range r.Results {
		out[res.Service.Status]++
	}
	return out
}

// Run scans every service and records the results against fw. A firmware
// that is not itself a baseline needs a baseline of the same release.
func (s *Scanner) Run(ctx context.Context, rec Recorder, fw store.Firmware) (*Report, error) {
	start := s.clock.Now()
	runID := s.ids.NewID()
	logger := s.logger.With("run", runID, "firmware", fw.Fingerprint)

	fw, err := rec.FindOrInsertFirmware(ctx, fw)
	if err != nil {
		return nil, fmt.Errorf("record firmware: %w", err)
	}

	var baseline *store.Firmware
	if !fw.IsBaseline {
		b, ok, err := rec.BaselineByRelease(ctx, fw.Release)
		if err != nil {
			return nil, fmt.Errorf("find baseline: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("no baseline firmware for release %d", fw.Release)
		}
		baseline = &b
		logger.Info("comparing against baseline", "baseline", b.Fingerprint)
	}

	if err := rec.ClearFirmware(ctx, fw.ID); err != nil {
		return nil, fmt.Errorf("clear firmware: %w", err)
	}

	results, err := s.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, Firmware: fw, Results: results}
	for i := range results {
		res := &results[i]
		res.Service.FirmwareID = fw.ID
		res.Service.RunID = runID
		for j := range res.Transactions {
			res.Transactions[j].FirmwareID = fw.ID
			res.Transactions[j].RunID = runID
		}
		if baseline != nil {
			if err := s.flagBaseline(ctx, rec, baseline.ID, res); err != nil {
				return nil, err
			}
		}
		if err := rec.WriteService(ctx, res.Service, res.Transactions); err != nil {
			return nil, fmt.Errorf("write service %s: %w", res.Service.Name, err)
		}

		report.Services++
		report.Transactions += len(res.Transactions)
		if res.Service.Status != store.ServiceOK {
			report.Failures++
		}
		report.Failures += res.failures()
	}

	err = rec.WriteScan(ctx, store.Scan{
		ID:           runID,
		FirmwareID:   fw.ID,
		Services:     report.Services,
		Transactions: report.Transactions,
		Failures:     report.Failures,
	})
	if err != nil {
		return nil, fmt.Errorf("write scan: %w", err)
	}

	report.Elapsed = s.clock.Now().Sub(start)
	logger.Info("scan complete",
		"services", report.Services,
		"transactions", report.Transactions,
		"failures", report.Failures,
		"elapsed", report.Elapsed)
	return report, nil
}

func (s *Scanner) flagBaseline(ctx context.Context, rec Recorder, baselineID int64, res *Result) error {
	known, err := rec.ServiceExists(ctx, baselineID, res.Service.Name)
	if err != nil {
		return fmt.Errorf("baseline service %s: %w", res.Service.Name, err)
	}
	res.Service.InBaseline = &known
	for i := range res.Transactions {
		t := &res.Transactions[i]
		known, err := rec.TransactionExists(ctx, baselineID, t.ServiceName, t.CalleeName)
		if err != nil {
			return fmt.Errorf("baseline transaction %s/%d: %w", t.ServiceName, t.Code, err)
		}
		t.InBaseline = &known
	}
	return nil
}

// Analyze discovers services, unless an explicit list was given, and
// analyses each on the worker pool. Results are ordered by service name.
func (s *Scanner) Analyze(ctx context.Context) ([]Result, error) {
	services := s.services
	if services == nil {
		var err error
		if services, err = s.Discover(ctx); err != nil {
			return nil, fmt.Errorf("discover services: %w", err)
		}
	}

	base, err := s.baseMethod()
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(services))
	pool := s.newPool(ctx)
	for i, svc := range services {
		err := pool.Submit(func(ctx context.Context) error {
			results[i] = s.analyzeService(svc, base)
			return nil
		})
		if err != nil {
			return nil, pool.Abort(fmt.Errorf("submit %s: %w", svc.Name, err))
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	if n := pool.Saturations(); n > 0 {
		s.logger.Debug("worker queue was saturated", "times", n)
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return strings.Compare(a.Service.Name, b.Service.Name)
	})
	return results, nil
}

// baseMethod returns the framework dispatch method every service overrides.
func (s *Scanner) baseMethod() (*ir.Method, error) {
	c := s.program.Class(s.cfg.DispatchClass)
	if c == nil {
		return nil, fmt.Errorf("dispatch class %s not found", s.cfg.DispatchClass)
	}
	ms := c.MethodsNamed(s.cfg.DispatchMethod)
	if len(ms) == 0 {
		return nil, fmt.Errorf("dispatch method %s#%s not found", s.cfg.DispatchClass, s.cfg.DispatchMethod)
	}
	return ms[0], nil
}

func (s *Scanner) analyzeService(svc Service, base *ir.Method) Result {
	logger := s.logger.With("service", svc.Name, "class", svc.Class)
	row := store.Service{Name: svc.Name, ClassName: svc.Class}
	res := Result{Service: row}
	status := func(st store.ServiceStatus) Result {
		res.Service.Status = st
		return res
	}

	c := s.program.Class(svc.Class)
	if c == nil || c.IsPhantom() {
		logger.Warn("service class not found")
		return status(store.ServiceMissingClass)
	}
	if c.IsInterface() {
		logger.Warn("service registered with an interface type")
		return status(store.ServiceInterface)
	}

	concrete := c
	if c.IsAbstract() {
		concrete = s.concreteSubclass(c)
		res.Service.ConcreteClass = concrete.Name
		logger.Debug("using concrete subclass", "concrete", concrete.Name)
	}

	entry, err := s.program.ResolveConcreteDispatch(concrete, base)
	if err != nil {
		logger.Warn("cannot resolve dispatch method", "error", err)
		return status(store.ServiceResolveError)
	}
	if entry == base {
		logger.Debug("service does not override dispatch method")
		return status(store.ServiceNoBinder)
	}
	res.Service.EntryPoint = entry.Key()

	cm, err := s.resolver.Resolve(entry, 0)
	if err != nil {
		logger.Warn("dispatch resolution failed", "method", entry.Key(), "error", err)
		return status(store.ServiceParseError)
	}
	if cm.Len() == 0 {
		logger.Warn("no request codes recovered", "method", entry.Key())
		return status(store.ServiceParseError)
	}
	if tr := cm.Truncations(); len(tr) > 0 {
		logger.Warn("dispatch table is partial", "method", entry.Key(), "truncated_scans", len(tr))
	}

	for _, e := range cm.Entries() {
		t := s.processTransaction(concrete, e)
		t.ServiceName = svc.Name
		t.ClassName = svc.Class
		t.ConcreteClass = res.Service.ConcreteClass
		res.Transactions = append(res.Transactions, t)
	}
	logger.Info("service analysed", "codes", cm.Len())
	return status(store.ServiceOK)
}

// concreteSubclass picks the class to dispatch on for an abstract service
// class: its only subclass, else its first concrete subclass, else itself.
func (s *Scanner) concreteSubclass(c *ir.Class) *ir.Class {
	subs := s.program.SubclassesOf(c.Name)
	switch len(subs) {
	case 0:
		return c
	case 1:
		return subs[0]
	}
	for _, sub := range subs {
		if !sub.IsAbstract() {
			return sub
		}
	}
	return c
}

func (s *Scanner) processTransaction(concrete *ir.Class, e engine.Entry) store.Transaction {
	t := store.Transaction{
		Code:   e.Code,
		Kind:   string(e.Transaction.Kind()),
		Status: store.TransactionOK,
		Caller: e.Transaction.Location().Key(),
	}

	var callee *ir.Method
	switch txn := e.Transaction.(type) {
	case engine.Standard:
		callee = s.dispatchTarget(concrete, txn.Target)
	case engine.Custom:
		name := s.cfg.SyntheticPrefix + strconv.FormatInt(e.Code, 10)
		sliced, err := txn.Slice(name)
		if err != nil {
			s.logger.Warn("slice failed", "method", t.Caller, "code", e.Code, "error", err)
			t.Status = store.TransactionSliceError
			t.Error = err.Error()
			return t
		}
		callee = sliced
	}

	t.Callee = callee.Key()
	t.CalleeName = callee.Name
	s.summarize(&t, callee)
	return t
}

// dispatchTarget narrows a standard target to the implementation reached
// on concrete, or to the unique implementation of an abstract target.
func (s *Scanner) dispatchTarget(concrete *ir.Class, target *ir.Method) *ir.Method {
	if target.Flags.Has(ir.FlagStatic) || target.Class == nil {
		return target
	}
	owner := target.ClassName()
	if concrete.Name == owner || s.program.IsSubclassOf(concrete, owner) || s.program.Implements(concrete, owner) {
		if impl, err := s.program.ResolveConcreteDispatch(concrete, target); err == nil {
			return impl
		}
	}
	return s.summarizer.SingleImpl(target)
}

func (s *Scanner) summarize(t *store.Transaction, callee *ir.Method) {
	if !callee.IsConcrete() {
		return
	}
	body, err := callee.Body()
	if err != nil {
		s.logger.Debug("callee body unavailable", "method", callee.Key(), "error", err)
		return
	}
	t.IsEmpty = s.summarizer.IsEmpty(body)
	for _, m := range s.summarizer.SingleInvokeChain(body) {
		t.Chain = append(t.Chain, m.Key())
	}
	t.IRText = ir.Format(callee, body)
	if fp, err := ir.Fingerprint(callee, body); err == nil {
		t.Fingerprint = fp
	} else {
		s.logger.Debug("fingerprint failed", "method", callee.Key(), "error", err)
	}
}
