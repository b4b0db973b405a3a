package scan

import (
	"context"
	"sync"

	"github.com/roach88/binderscan/internal/ir"
)

// Service is a registered system service: a name and the class of the
// object registered under it.
type Service struct {
	Name  string
	Class string
}

// Registrar is a method that registers a service. An empty Class matches
// the method name on any class.
type Registrar struct {
	Class string
	Name  string
}

// DefaultRegistrars are SystemService.publishBinderService on any
// subclass and ServiceManager.addService.
var DefaultRegistrars = []Registrar{
	{Name: "publishBinderService"},
	{Class: "android.os.ServiceManager", Name: "addService"},
}

// binderInterface is the type registrations are often declared with.
// The concrete class is then recovered from an asBinder() call.
const binderInterface ir.Type = "android.os.IBinder"

// registration is one registration call found in a body.
type registration struct {
	name   string
	class  string
	method string
}

func (r Registrar) matches(m *ir.Method) bool {
	return m.Name == r.Name && (r.Class == "" || m.ClassName() == r.Class)
}

// Discover finds every service registered by a call whose first argument
// is a string constant. Classes are scanned on the pool and merged in
// program order; when a name is registered twice with different classes
// the first registration wins and the conflict is logged.
func (s *Scanner) Discover(ctx context.Context) ([]Service, error) {
	classes := s.program.Classes()
	found := make([][]registration, len(classes))

	pool := s.newPool(ctx)
	var mu sync.Mutex
	for i, c := range classes {
		if c.IsInterface() || c.IsPhantom() {
			continue
		}
		err := pool.Submit(func(ctx context.Context) error {
			regs := s.registrationsIn(c)
			mu.Lock()
			found[i] = regs
			mu.Unlock()
			return nil
		})
		if err != nil {
			pool.Wait()
			return nil, err
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}

	var services []Service
	byName := make(map[string]string)
	for _, regs := range found {
		for _, r := range regs {
			if existing, ok := byName[r.name]; ok {
				if existing != r.class {
					s.logger.Error("service already registered, ignoring",
						"service", r.name, "class", existing, "ignored", r.class, "method", r.method)
				}
				continue
			}
			byName[r.name] = r.class
			services = append(services, Service{Name: r.name, Class: r.class})
		}
	}
	s.logger.Info("discovered services", "count", len(services))
	return services, nil
}

func (s *Scanner) registrationsIn(c *ir.Class) []registration {
	var out []registration
	for _, m := range c.Methods {
		if !m.IsConcrete() {
			continue
		}
		body, err := m.Body()
		if err != nil {
			s.logger.Debug("skipping unreadable body", "method", m.Key(), "error", err)
			continue
		}
		for _, blk := range body.Blocks {
			for _, st := range blk.Stmts {
				call := ir.StmtInvoke(st)
				if call == nil || call.Method == nil || !s.isRegistrar(call.Method) || len(call.Args) < 2 {
					continue
				}
				name, ok := call.Args[0].(ir.StringConst)
				if !ok {
					continue
				}
				class := registeredClass(body, call.Args[1])
				if class == "" {
					s.logger.Warn("cannot determine registered class",
						"service", string(name), "method", m.Key(), "arg", call.Args[1])
					continue
				}
				out = append(out, registration{name: string(name), class: class, method: m.Key()})
			}
		}
	}
	return out
}

func (s *Scanner) isRegistrar(m *ir.Method) bool {
	for _, r := range s.registrars {
		if r.matches(m) {
			return true
		}
	}
	return false
}

// registeredClass returns the class name of a registered object, looking
// through "x = y.asBinder()" when the declared type is IBinder.
func registeredClass(body *ir.Body, v ir.Value) string {
	l, ok := v.(*ir.Local)
	if !ok {
		return ""
	}
	if l.Type != binderInterface {
		if l.Type.IsPrimitive() || l.Type.IsArray() {
			return ""
		}
		return string(l.Type)
	}
	for _, blk := range body.Blocks {
		for _, st := range blk.Stmts {
			as, ok := st.(*ir.Assign)
			if !ok || as.Dst != l {
				continue
			}
			call, ok := as.Src.(*ir.InvokeExpr)
			if !ok || call.Method == nil || call.Method.Name != "asBinder" {
				continue
			}
			if base, ok := call.Base.(*ir.Local); ok && base.Type != binderInterface {
				return string(base.Type)
			}
		}
	}
	return ""
}
