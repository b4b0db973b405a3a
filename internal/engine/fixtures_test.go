package engine

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/binderscan/internal/ir"
	"github.com/roach88/binderscan/internal/testutil"
)

const (
	stubClass  = "com.example.IFoo$Stub"
	outerClass = "com.example.IFoo"
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
	tb := &txnBody{BodyBuilder: bb}
	tb.this = bb.This("this", ir.Type(class))
	tb.code = bb.Param("code", ir.TypeInt)
	tb.data = bb.Param("data", testutil.TypeParcel)
	tb.reply = bb.Param("reply", testutil.TypeParcel)
	tb.flags = bb.Param("flags", ir.TypeInt)
	return tb
}

func (tb *txnBody) args() []ir.Value {
	return []ir.Value{tb.code, tb.data, tb.reply, tb.flags}
}

type parcelAPI struct {
	readInt, writeInt, writeString, writeNoException *ir.Method
}

func parcel(pb *testutil.ProgramBuilder) parcelAPI {
	return parcelAPI{
		readInt:          pb.Phantom("android.os.Parcel", "readInt", nil, ir.TypeInt),
		writeInt:         pb.Phantom("android.os.Parcel", "writeInt", []ir.Type{ir.TypeInt}, ir.TypeVoid),
		writeString:      pb.Phantom("android.os.Parcel", "writeString", []ir.Type{"java.lang.String"}, ir.TypeVoid),
		writeNoException: pb.Phantom("android.os.Parcel", "writeNoException", nil, ir.TypeVoid),
	}
}

func binderOnTransact(pb *testutil.ProgramBuilder) *ir.Method {
	binder := pb.Class("android.os.Binder")
	if m := binder.Method(ir.Signature("onTransact", testutil.TransactParams, ir.TypeBoolean)); m != nil {
		return m
	}
	m := pb.Method(binder, "onTransact", testutil.TransactParams, ir.TypeBoolean)
	tb := newTxnBody("android.os.Binder")
	tb.Block(0, &ir.Return{Value: testutil.Int(0)})
	m.SetBody(tb.Build(pb.TB()))
	return m
}

// switchFixture is the stub from the canonical scenario:
//
//	switch (code) {
//	case 1: return ping();               // outer-class helper
//	case 2: reply.writeInt(data.readInt() + 1);
//	case INTERFACE_TRANSACTION: reply.writeString(DESCRIPTOR);
//	default: return super.onTransact(...);
//	}
type switchFixture struct {
	program    *ir.Program
	onTransact *ir.Method
	ping       *ir.Method
	body       *ir.Body
}

func newSwitchFixture(t *testing.T) switchFixture {
	t.Helper()
	pb := testutil.NewProgram(t)
	p := parcel(pb)
	super := binderOnTransact(pb)

	outer := pb.Class(outerClass, testutil.WithFlags(ir.FlagInterface))
	ping := pb.Method(outer, "ping", nil, ir.TypeInt, ir.FlagAbstract)
	stub := pb.Class(stubClass, testutil.Super("android.os.Binder"), testutil.Outer(outerClass), testutil.Implements(outerClass))
	m := pb.Method(stub, "onTransact", testutil.TransactParams, ir.TypeBoolean)

	tb := newTxnBody(stubClass)
	r := tb.Local("r", ir.TypeInt)
	x := tb.Local("x", ir.TypeInt)
	y := tb.Local("y", ir.TypeInt)
	r2 := tb.Local("r2", ir.TypeBoolean)
	tb.Block(0, &ir.Switch{Key: tb.code, Cases: []ir.SwitchCase{
		{Value: 1, Target: 1},
		{Value: 2, Target: 2},
		{Value: InterfaceTransaction, Target: 3},
	}, Default: 4})
	tb.Block(1,
		&ir.Assign{Dst: r, Src: &ir.InvokeExpr{Kind: ir.InvokeInterface, Method: ping, Base: tb.this}},
		&ir.Invoke{Call: testutil.Call(p.writeInt, tb.reply, r)},
		&ir.Return{Value: testutil.Int(1)},
	)
	tb.Block(2,
		&ir.Assign{Dst: x, Src: testutil.Call(p.readInt, tb.data)},
		&ir.Assign{Dst: y, Src: &ir.BinExpr{Op: ir.OpAdd, X: x, Y: testutil.Int(1)}},
		&ir.Invoke{Call: testutil.Call(p.writeInt, tb.reply, y)},
		&ir.Return{Value: testutil.Int(1)},
	)
	tb.Block(3,
		&ir.Invoke{Call: testutil.Call(p.writeString, tb.reply, ir.StringConst(outerClass))},
		&ir.Return{Value: testutil.Int(1)},
	)
	tb.Block(4,
		&ir.Assign{Dst: r2, Src: &ir.InvokeExpr{Kind: ir.InvokeSpecial, Method: super, Base: tb.this, Args: tb.args()}},
		&ir.Return{Value: r2},
	)
	body := tb.Build(t)
	m.SetBody(body)
	return switchFixture{program: pb.Program(), onTransact: m, ping: ping, body: body}
}

// chainBody builds an if-chain over codes. With ne set the comparisons use
// the "code != K" form with swapped targets, which is the same program.
//
//	b(2i):   if code == K goto b(2i+1) else b(2i+2)
//	b(2i+1): reply.writeInt(K); return true
//	b(2n):   return false
func chainBody(t *testing.T, pb *testutil.ProgramBuilder, class string, codes []int64, ne bool) *ir.Body {
	t.Helper()
	p := parcel(pb)
	tb := newTxnBody(class)
	for i, k := range codes {
		test, hit, next := ir.BlockID(2*i), ir.BlockID(2*i+1), ir.BlockID(2*i+2)
		cond := &ir.If{Cond: testutil.Eq(tb.code, testutil.Int(k)), Then: hit, Else: next}
		if ne {
			cond = &ir.If{Cond: testutil.Ne(tb.code, testutil.Int(k)), Then: next, Else: hit}
		}
		tb.Block(test, cond)
		tb.Block(hit,
			&ir.Invoke{Call: testutil.Call(p.writeInt, tb.reply, testutil.Int(k))},
			&ir.Return{Value: testutil.Int(1)},
		)
	}
	tb.Block(ir.BlockID(2*len(codes)), &ir.Return{Value: testutil.Int(0)})
	return tb.Build(t)
}

// forwardingBody builds "return target.onTransact(code, data, reply, flags)"
// with the receiver read from a field.
func forwardingBody(t *testing.T, class string, target *ir.Method) *ir.Body {
	t.Helper()
	tb := newTxnBody(class)
	impl := tb.Local("impl", ir.Type(target.ClassName()))
	r := tb.Local("r", ir.TypeBoolean)
	tb.Block(0,
		&ir.Assign{Dst: impl, Src: &ir.FieldRef{Base: tb.this, Class: class, Field: "mImpl"}},
		&ir.Assign{Dst: r, Src: testutil.Call(target, impl, tb.args()...)},
		&ir.Return{Value: r},
	)
	return tb.Build(t)
}
