package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var onTransactParams = []Type{TypeInt, "android.os.Parcel", "android.os.Parcel", TypeInt}

func newHierarchy(t *testing.T) *Program {
	t.Helper()
	p, err := NewProgram(nil)
	require.NoError(t, err)
	add := func(c *Class, methods ...*Method) {
		for _, m := range methods {
			require.NoError(t, c.AddMethod(m))
		}
		require.NoError(t, p.AddClass(c))
	}
	txn := func(flags Flags) *Method {
		return &Method{Name: "onTransact", Params: onTransactParams, Return: TypeBoolean, Flags: flags}
	}

	add(&Class{Name: "android.os.IInterface", Flags: FlagInterface})
	add(&Class{Name: "com.example.IFoo", Flags: FlagInterface, Interfaces: []string{"android.os.IInterface"}})
	add(&Class{Name: "android.os.Binder"}, txn(0))
	add(&Class{Name: "com.example.IFoo$Stub", Super: "android.os.Binder", Flags: FlagAbstract,
		Interfaces: []string{"com.example.IFoo"}}, txn(0))
	add(&Class{Name: "com.example.FooService", Super: "com.example.IFoo$Stub"})
	add(&Class{Name: "com.example.AbstractBar", Super: "android.os.Binder", Flags: FlagAbstract}, txn(FlagAbstract))
	add(&Class{Name: "com.example.Bar", Super: "com.example.AbstractBar"})
	return p
}

func TestHierarchySubclasses(t *testing.T) {
	p := newHierarchy(t)

	names := func(cs []*Class) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t,
		[]string{"com.example.IFoo$Stub", "com.example.FooService", "com.example.AbstractBar", "com.example.Bar"},
		names(p.SubclassesOf("android.os.Binder")))
	assert.Equal(t, []string{"com.example.FooService"}, names(p.SubclassesOf("com.example.IFoo$Stub")))
	assert.Empty(t, p.SubclassesOf("com.example.Bar"))

	assert.True(t, p.IsSubclassOf(p.Class("com.example.Bar"), "android.os.Binder"))
	assert.False(t, p.IsSubclassOf(p.Class("android.os.Binder"), "android.os.Binder"))
}

func TestHierarchyImplementers(t *testing.T) {
	p := newHierarchy(t)

	impls := p.ImplementersOf("android.os.IInterface")
	require.Len(t, impls, 2)
	assert.Equal(t, "com.example.IFoo$Stub", impls[0].Name)
	assert.Equal(t, "com.example.FooService", impls[1].Name, "implementation is inherited")
	assert.False(t, p.Implements(p.Class("com.example.Bar"), "com.example.IFoo"))
}

func TestHierarchyConcreteDispatch(t *testing.T) {
	p := newHierarchy(t)
	base := p.Class("android.os.Binder").MethodsNamed("onTransact")[0]
	stub := p.Class("com.example.IFoo$Stub").MethodsNamed("onTransact")[0]

	got, err := p.ResolveConcreteDispatch(p.Class("com.example.FooService"), base)
	require.NoError(t, err)
	assert.Same(t, stub, got)
	assert.True(t, p.HasConcreteOverride(p.Class("com.example.FooService"), base))

	// The abstract redeclaration is skipped in favour of Binder's.
	got, err = p.ResolveConcreteDispatch(p.Class("com.example.Bar"), base)
	require.NoError(t, err)
	assert.Same(t, base, got)
	assert.False(t, p.HasConcreteOverride(p.Class("com.example.Bar"), base))

	_, err = p.ResolveConcreteDispatch(p.Class("com.example.IFoo"), base)
	assert.Error(t, err)
}

func TestHierarchyLookupMethod(t *testing.T) {
	p := newHierarchy(t)
	sig := Signature("onTransact", onTransactParams, TypeBoolean)

	m := p.LookupMethod(p.Class("com.example.FooService"), sig)
	require.NotNil(t, m)
	assert.Equal(t, "com.example.IFoo$Stub", m.ClassName())
	assert.Nil(t, p.LookupMethod(p.Class("com.example.FooService"), "missing()void"))
}

func TestHierarchySuperCycle(t *testing.T) {
	p, err := NewProgram(nil)
	require.NoError(t, err)
	require.NoError(t, p.AddClass(&Class{Name: "A", Super: "B"}))
	require.NoError(t, p.AddClass(&Class{Name: "B", Super: "A"}))

	assert.False(t, p.IsSubclassOf(p.Class("A"), "C"))
	assert.Nil(t, p.LookupMethod(p.Class("A"), "x()void"))
}
