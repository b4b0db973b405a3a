package ir

import (
	"fmt"
	"strings"
)

// BlockID labels a basic block within one Body.
type BlockID int

// NoBlock marks an absent branch target, e.g. a switch without default.
const NoBlock BlockID = -1

func (id BlockID) String() string {
	if id == NoBlock {
		return "none"
	}
	return fmt.Sprintf("b%d", int(id))
}

// Stmt is one IR instruction. The variant set is closed:
// *Assign, *If, *Switch, *Goto, *Invoke, *Return and *Phi.
type Stmt interface {
	fmt.Stringer
	stmt()
}

// Assign stores Src into Dst. Dst is a *Local or a *FieldRef/*OpExpr lvalue.
type Assign struct {
	Dst Value
	Src Value
}

// If transfers control to Then when Cond holds and to Else otherwise.
type If struct {
	Cond *BinExpr
	Then BlockID
	Else BlockID
}

// SwitchCase is one (value, target) arm of a Switch.
type SwitchCase struct {
	Value  int64
	Target BlockID
}

// Switch is a multi-way branch on Key.
type Switch struct {
	Key     Value
	Cases   []SwitchCase
	Default BlockID
}

// Goto is an unconditional jump.
type Goto struct {
	Target BlockID
}

// Invoke is a call whose result is discarded.
type Invoke struct {
	Call *InvokeExpr
}

// Return leaves the method. Value is nil for void returns.
type Return struct {
	Value Value
}

// PhiArg is the value a Phi selects when control arrives from Pred.
type PhiArg struct {
	Pred  BlockID
	Value Value
}

// Phi is an SSA merge.
type Phi struct {
	Dst  *Local
	Args []PhiArg
}

func (*Assign) stmt() {}
func (*If) stmt()     {}
func (*Switch) stmt() {}
func (*Goto) stmt()   {}
func (*Invoke) stmt() {}
func (*Return) stmt() {}
func (*Phi) stmt()    {}

func (s *Assign) String() string { return fmt.Sprintf("%s = %s", s.Dst, s.Src) }

func (s *If) String() string {
	return fmt.Sprintf("if %s goto %s else %s", s.Cond, s.Then, s.Else)
}

func (s *Switch) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "switch %s {", s.Key)
	for i, c := range s.Cases {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " %d: %s", c.Value, c.Target)
	}
	fmt.Fprintf(&b, " } default %s", s.Default)
	return b.String()
}

func (s *Goto) String() string   { return "goto " + s.Target.String() }
func (s *Invoke) String() string { return s.Call.String() }

func (s *Return) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}

func (s *Phi) String() string {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = fmt.Sprintf("%s: %s", a.Pred, a.Value)
	}
	return fmt.Sprintf("%s = phi(%s)", s.Dst, strings.Join(args, ", "))
}

// IsTerminator reports whether s ends a block.
func IsTerminator(s Stmt) bool {
	switch s.(type) {
	case *If, *Switch, *Goto, *Return:
		return true
	}
	return false
}

// Targets returns the blocks s can branch to, in declaration order with
// duplicates removed. Non-branching statements return nil.
func Targets(s Stmt) []BlockID {
	var out []BlockID
	add := func(id BlockID) {
		if id == NoBlock {
			return
		}
		for _, seen := range out {
			if seen == id {
				return
			}
		}
		out = append(out, id)
	}
	switch st := s.(type) {
	case *If:
		add(st.Then)
		add(st.Else)
	case *Switch:
		for _, c := range st.Cases {
			add(c.Target)
		}
		add(st.Default)
	case *Goto:
		add(st.Target)
	}
	return out
}

// StmtInvoke returns the invocation performed by s, if any.
func StmtInvoke(s Stmt) *InvokeExpr {
	switch st := s.(type) {
	case *Invoke:
		return st.Call
	case *Assign:
		if ie := FindInvoke(st.Src); ie != nil {
			return ie
		}
		return FindInvoke(st.Dst)
	case *If:
		return FindInvoke(st.Cond)
	case *Switch:
		return FindInvoke(st.Key)
	case *Return:
		return FindInvoke(st.Value)
	}
	return nil
}

// StmtLocals returns every local used or defined by s, in operand order.
func StmtLocals(s Stmt) []*Local {
	var out []*Local
	switch st := s.(type) {
	case *Assign:
		out = LocalsOf(out, st.Dst)
		out = LocalsOf(out, st.Src)
	case *If:
		out = LocalsOf(out, st.Cond)
	case *Switch:
		out = LocalsOf(out, st.Key)
	case *Invoke:
		out = LocalsOf(out, st.Call)
	case *Return:
		out = LocalsOf(out, st.Value)
	case *Phi:
		out = append(out, st.Dst)
		for _, a := range st.Args {
			out = LocalsOf(out, a.Value)
		}
	}
	return out
}

// CloneStmt deep-copies s, replacing locals through m.
func CloneStmt(s Stmt, m map[*Local]*Local) Stmt {
	switch st := s.(type) {
	case *Assign:
		return &Assign{Dst: RewriteLocals(st.Dst, m), Src: RewriteLocals(st.Src, m)}
	case *If:
		cond, _ := RewriteLocals(st.Cond, m).(*BinExpr)
		return &If{Cond: cond, Then: st.Then, Else: st.Else}
	case *Switch:
		cases := make([]SwitchCase, len(st.Cases))
		copy(cases, st.Cases)
		return &Switch{Key: RewriteLocals(st.Key, m), Cases: cases, Default: st.Default}
	case *Goto:
		return &Goto{Target: st.Target}
	case *Invoke:
		call, _ := RewriteLocals(st.Call, m).(*InvokeExpr)
		return &Invoke{Call: call}
	case *Return:
		return &Return{Value: RewriteLocals(st.Value, m)}
	case *Phi:
		args := make([]PhiArg, len(st.Args))
		for i, a := range st.Args {
			args[i] = PhiArg{Pred: a.Pred, Value: RewriteLocals(a.Value, m)}
		}
		dst := st.Dst
		if n, ok := m[dst]; ok {
			dst = n
		}
		return &Phi{Dst: dst, Args: args}
	default:
		panic(fmt.Sprintf("ir: unknown statement type %T", s))
	}
}
