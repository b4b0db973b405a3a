package ir

import "fmt"

// SuperOf returns the declared superclass of c, or nil.
func (p *Program) SuperOf(c *Class) *Class {
	if c.Super == "" {
		return nil
	}
	return p.Class(c.Super)
}

// IsSubclassOf reports whether c extends ancestor, directly or transitively.
// A class is not its own subclass.
func (p *Program) IsSubclassOf(c *Class, ancestor string) bool {
	seen := map[*Class]bool{c: true}
	for s := p.SuperOf(c); s != nil && !seen[s]; s = p.SuperOf(s) {
		if s.Name == ancestor {
			return true
		}
		seen[s] = true
	}
	return false
}

// SubclassesOf returns every class that transitively extends name, in
// registration order.
func (p *Program) SubclassesOf(name string) []*Class {
	var out []*Class
	for _, c := range p.order {
		if p.IsSubclassOf(c, name) {
			out = append(out, c)
		}
	}
	return out
}

// Implements reports whether c implements iface through its own interface
// list, a superinterface, or a superclass.
func (p *Program) Implements(c *Class, iface string) bool {
	seen := make(map[string]bool)
	var walk func(*Class) bool
	walk = func(k *Class) bool {
		if k == nil || seen[k.Name] {
			return false
		}
		seen[k.Name] = true
		for _, i := range k.Interfaces {
			if i == iface {
				return true
			}
			if walk(p.Class(i)) {
				return true
			}
		}
		return walk(p.SuperOf(k))
	}
	return walk(c)
}

// ImplementersOf returns every non-interface class implementing iface, in
// registration order.
func (p *Program) ImplementersOf(iface string) []*Class {
	var out []*Class
	for _, c := range p.order {
		if !c.IsInterface() && p.Implements(c, iface) {
			out = append(out, c)
		}
	}
	return out
}

// LookupMethod finds the method with signature sig visible on c, searching
// c and then its superclasses.
func (p *Program) LookupMethod(c *Class, sig string) *Method {
	seen := make(map[*Class]bool)
	for k := c; k != nil && !seen[k]; k = p.SuperOf(k) {
		seen[k] = true
		if m := k.Method(sig); m != nil {
			return m
		}
	}
	return nil
}

// ResolveConcreteDispatch returns the implementation a virtual call to m
// reaches on an instance of c: the nearest concrete method with m's
// signature in c or its superclasses.
func (p *Program) ResolveConcreteDispatch(c *Class, m *Method) (*Method, error) {
	if c.IsInterface() {
		return nil, fmt.Errorf("cannot dispatch on interface %s", c.Name)
	}
	sig := m.Signature()
	seen := make(map[*Class]bool)
	for k := c; k != nil && !seen[k]; k = p.SuperOf(k) {
		seen[k] = true
		if cand := k.Method(sig); cand != nil && !cand.IsAbstract() {
			return cand, nil
		}
	}
	return nil, fmt.Errorf("no concrete implementation of %s in %s", sig, c.Name)
}

// HasConcreteOverride reports whether dispatching m on c reaches a method
// other than m itself.
func (p *Program) HasConcreteOverride(c *Class, m *Method) bool {
	impl, err := p.ResolveConcreteDispatch(c, m)
	return err == nil && impl != m
}
