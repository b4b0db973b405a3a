package scan

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
	"github.com/roach88/binderscan/internal/store"
	"github.com/roach88/binderscan/internal/testutil"
)

const (
	ifaceClass   = "com.example.IFoo"
	stubClass    = "com.example.IFoo$Stub"
	fooClass     = "com.example.FooService"
	barClass     = "com.example.BarService"
	plainClass   = "com.example.Plain"
	emptyClass   = "com.example.EmptyService"
	serverClass  = "com.android.server.SystemServer"
	systemSvc    = "com.android.server.SystemService"
	serviceMgr   = "android.os.ServiceManager"
	binderIface  = ir.Type("android.os.IBinder")
	stringType   = ir.Type("java.lang.String")
	binderClass  = "android.os.Binder"
	dispatchName = "onTransact"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// txnBody declares the receiver and the four onTransact parameters.
type txnBody struct {
	*testutil.BodyBuilder
	this, code, data, reply, flags *ir.Local
}

func newTxnBody(class string) *txnBody {
	bb := testutil.NewBody()
	return &txnBody{
		BodyBuilder: bb,
		this:        bb.This("this", ir.Type(class)),
		code:        bb.Param("code", ir.TypeInt),
		data:        bb.Param("data", testutil.TypeParcel),
		reply:       bb.Param("reply", testutil.TypeParcel),
		flags:       bb.Param("flags", ir.TypeInt),
	}
}

// returnsZero gives m the body "return 0".
func returnsZero(t *testing.T, m *ir.Method, class string) {
	tb := newTxnBody(class)
	tb.Block(0, &ir.Return{Value: testutil.Int(0)})
	m.SetBody(tb.Build(t))
}

// serviceFixture is a small system server:
//
//	foo    -> FooService, extends IFoo$Stub: codes 1 (ping) and 2 (inline)
//	absfoo -> IFoo$Stub, abstract; analysed through FooService
//	bar    -> BarService via IBinder/asBinder, no onTransact override
//	iface  -> IFoo, an interface
//	ghost  -> a class that is never declared
//	plain  -> a class outside the Binder hierarchy
//	empty  -> EmptyService, whose onTransact handles no codes
type serviceFixture struct {
	program    *ir.Program
	base       *ir.Method
	onTransact *ir.Method
	ping       *ir.Method
	fooPing    *ir.Method
	helper     *ir.Method
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	pb := testutil.NewProgram(t)

	readInt := pb.Phantom("android.os.Parcel", "readInt", nil, ir.TypeInt)
	writeInt := pb.Phantom("android.os.Parcel", "writeInt", []ir.Type{ir.TypeInt}, ir.TypeVoid)
	writeString := pb.Phantom("android.os.Parcel", "writeString", []ir.Type{stringType}, ir.TypeVoid)

	binder := pb.Class(binderClass)
	base := pb.Method(binder, dispatchName, testutil.TransactParams, ir.TypeBoolean)
	returnsZero(t, base, binderClass)

	iface := pb.Class(ifaceClass, testutil.WithFlags(ir.FlagInterface))
	ping := pb.Method(iface, "ping", nil, ir.TypeInt, ir.FlagAbstract)

	stub := pb.Class(stubClass, testutil.Super(binderClass), testutil.Outer(ifaceClass),
		testutil.Implements(ifaceClass), testutil.WithFlags(ir.FlagAbstract))
	onTransact := pb.Method(stub, dispatchName, testutil.TransactParams, ir.TypeBoolean)
	tb := newTxnBody(stubClass)
	r := tb.Local("r", ir.TypeInt)
	x := tb.Local("x", ir.TypeInt)
	y := tb.Local("y", ir.TypeInt)
	r2 := tb.Local("r2", ir.TypeBoolean)
	tb.Block(0, &ir.Switch{Key: tb.code, Cases: []ir.SwitchCase{
		{Value: 1, Target: 1},
		{Value: 2, Target: 2},
		{Value: engine.InterfaceTransaction, Target: 3},
	}, Default: 4})
	tb.Block(1,
		&ir.Assign{Dst: r, Src: &ir.InvokeExpr{Kind: ir.InvokeInterface, Method: ping, Base: tb.this}},
		&ir.Invoke{Call: testutil.Call(writeInt, tb.reply, r)},
		&ir.Return{Value: testutil.Int(1)},
	)
	tb.Block(2,
		&ir.Assign{Dst: x, Src: testutil.Call(readInt, tb.data)},
		&ir.Assign{Dst: y, Src: &ir.BinExpr{Op: ir.OpAdd, X: x, Y: testutil.Int(1)}},
		&ir.Invoke{Call: testutil.Call(writeInt, tb.reply, y)},
		&ir.Return{Value: testutil.Int(1)},
	)
	tb.Block(3,
		&ir.Invoke{Call: testutil.Call(writeString, tb.reply, ir.StringConst(ifaceClass))},
		&ir.Return{Value: testutil.Int(1)},
	)
	tb.Block(4,
		&ir.Assign{Dst: r2, Src: &ir.InvokeExpr{Kind: ir.InvokeSpecial, Method: base, Base: tb.this,
			Args: []ir.Value{tb.code, tb.data, tb.reply, tb.flags}}},
		&ir.Return{Value: r2},
	)
	onTransact.SetBody(tb.Build(t))

	foo := pb.Class(fooClass, testutil.Super(stubClass))
	helper := pb.Method(foo, "helper", nil, ir.TypeInt, ir.FlagPrivate)
	hb := testutil.NewBody()
	hb.This("this", fooClass)
	hb.Block(0, &ir.Return{Value: testutil.Int(7)})
	helper.SetBody(hb.Build(t))

	fooPing := pb.Method(foo, "ping", nil, ir.TypeInt)
	pbody := testutil.NewBody()
	this := pbody.This("this", fooClass)
	v := pbody.Local("v", ir.TypeInt)
	pbody.Block(0,
		&ir.Assign{Dst: v, Src: &ir.InvokeExpr{Kind: ir.InvokeSpecial, Method: helper, Base: this}},
		&ir.Return{Value: v},
	)
	fooPing.SetBody(pbody.Build(t))

	pb.Class(barClass, testutil.Super(binderClass))
	pb.Class(plainClass)
	empty := pb.Class(emptyClass, testutil.Super(binderClass))
	returnsZero(t, pb.Method(empty, dispatchName, testutil.TransactParams, ir.TypeBoolean), emptyClass)

	publish := pb.Phantom(systemSvc, "publishBinderService", []ir.Type{stringType, binderIface}, ir.TypeVoid)
	addService := pb.Phantom(serviceMgr, "addService", []ir.Type{stringType, binderIface}, ir.TypeVoid)
	asBinder := pb.Phantom("android.os.IInterface", "asBinder", nil, binderIface)

	server := pb.Class(serverClass, testutil.Super(systemSvc))
	start := pb.Method(server, "startServices", nil, ir.TypeVoid)
	sb := testutil.NewBody()
	self := sb.This("this", serverClass)
	fooLocal := sb.Local("foo", fooClass)
	stubLocal := sb.Local("stub", stubClass)
	barLocal := sb.Local("bar", barClass)
	barBinder := sb.Local("barBinder", binderIface)
	ifaceLocal := sb.Local("iface", ifaceClass)
	ghostLocal := sb.Local("ghost", "com.example.Ghost")
	plainLocal := sb.Local("plain", plainClass)
	emptyLocal := sb.Local("empty", emptyClass)
	register := func(name string, l *ir.Local) ir.Stmt {
		return &ir.Invoke{Call: testutil.Call(publish, self, ir.StringConst(name), l)}
	}
	sb.Block(0,
		register("foo", fooLocal),
		register("absfoo", stubLocal),
		&ir.Assign{Dst: barBinder, Src: &ir.InvokeExpr{Kind: ir.InvokeInterface, Method: asBinder, Base: barLocal}},
		&ir.Invoke{Call: testutil.Call(addService, nil, ir.StringConst("bar"), barBinder)},
		register("iface", ifaceLocal),
		register("ghost", ghostLocal),
		register("plain", plainLocal),
		register("empty", emptyLocal),
		&ir.Return{},
	)
	start.SetBody(sb.Build(t))

	return serviceFixture{
		program:    pb.Program(),
		base:       base,
		onTransact: onTransact,
		ping:       ping,
		fooPing:    fooPing,
		helper:     helper,
	}
}

func newTestScanner(fx serviceFixture, opts ...Option) *Scanner {
	defaults := []Option{
		WithLogger(quietLogger()),
		WithIDGenerator(&testutil.SequentialIDGenerator{}),
		WithClock(testutil.NewDeterministicClock(time.Second)),
	}
	return New(fx.program, append(defaults, opts...)...)
}

func createTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scan.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func firmware(fingerprint string, release int, baseline bool) store.Firmware {
	return store.Firmware{
		Fingerprint: fingerprint,
		Brand:       "generic",
		Product:     "test",
		Release:     release,
		IsBaseline:  baseline,
	}
}

func resultNamed(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Service.Name == name {
			return r
		}
	}
	t.Fatalf("no result for service %q", name)
	return Result{}
}
