// Package expr implements the assembler's expression trees: literals,
// qualified identifiers, arithmetic nodes, and the disassembler's label
// wrapper.  Trees are owned (no node sharing); Clone produces a deep copy.
package expr

import (
	"fmt"
	"sort"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
)

// LookupContext resolves identifier references during evaluation.
type LookupContext interface {
	// Lookup returns the value bound to name.  module is empty for an
	// unqualified reference, or the module qualifier ("" names the global
	// module when the reference was spelled "::name").
	Lookup(name, module string, qualified bool) (int, error)
}

// NullLookupContext fails every lookup.  Evaluating against it answers the
// question "is this expression a constant?".
type NullLookupContext struct{}

// Lookup implements LookupContext by always failing.
func (NullLookupContext) Lookup(name, module string, qualified bool) (int, error) {
	return 0, asmerr.New("can't perform name lookup in this context")
}

// Expression is one node of an expression tree.
type Expression interface {
	// Evaluate computes the expression's value, resolving identifiers
	// through ctx.
	Evaluate(ctx LookupContext) (int, error)
	// Type returns the expression's numeric type, if known.
	Type() addr.NumericType
	// RequiresLookup reports whether evaluation needs a name lookup.
	RequiresLookup() bool
	// ModuleRefs adds the names of all modules referenced by this
	// expression to out.
	ModuleRefs(out map[string]bool)
	// Clone returns a deep copy.
	Clone() Expression
	fmt.Stringer
}

// ModuleNames collects the sorted module references of an expression.
func ModuleNames(e Expression) []string {
	set := make(map[string]bool)
	e.ModuleRefs(set)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Literal is a constant numeric value.
type Literal struct {
	Value   int
	NumType addr.NumericType
}

// NewLiteral builds a literal, coercing the value to the given type.
func NewLiteral(value int, t addr.NumericType) *Literal {
	return &Literal{Value: addr.Cast(t, value), NumType: t}
}

func (l *Literal) Evaluate(ctx LookupContext) (int, error) { return l.Value, nil }
func (l *Literal) Type() addr.NumericType                  { return l.NumType }
func (l *Literal) RequiresLookup() bool                    { return false }
func (l *Literal) ModuleRefs(out map[string]bool)          {}
func (l *Literal) Clone() Expression                       { c := *l; return &c }

func (l *Literal) String() string {
	switch l.NumType {
	case addr.Byte:
		return fmt.Sprintf("$%02x", l.Value)
	case addr.Word:
		return fmt.Sprintf("$%04x", l.Value)
	case addr.Long:
		return fmt.Sprintf("$%06x", l.Value)
	default:
		return fmt.Sprintf("%d", l.Value)
	}
}

// FullIdentifier is a possibly module-qualified name.  "mod::name" qualifies
// into a named module; "::name" pins the lookup to the global module set.
type FullIdentifier struct {
	Module    string
	Name      string
	Qualified bool
}

func (f FullIdentifier) String() string {
	if f.Qualified {
		return f.Module + "::" + f.Name
	}
	return f.Name
}

// Identifier is a deferred name reference with a declared width.
type Identifier struct {
	Ident   FullIdentifier
	NumType addr.NumericType
}

// NewIdentifier builds an identifier reference of the given width.
func NewIdentifier(ident FullIdentifier, t addr.NumericType) *Identifier {
	return &Identifier{Ident: ident, NumType: t}
}

func (i *Identifier) Evaluate(ctx LookupContext) (int, error) {
	return ctx.Lookup(i.Ident.Name, i.Ident.Module, i.Ident.Qualified)
}
func (i *Identifier) Type() addr.NumericType { return i.NumType }
func (i *Identifier) RequiresLookup() bool   { return true }
func (i *Identifier) ModuleRefs(out map[string]bool) {
	if i.Ident.Qualified && i.Ident.Module != "" {
		out[i.Ident.Module] = true
	}
}
func (i *Identifier) Clone() Expression { c := *i; return &c }
func (i *Identifier) String() string    { return i.Ident.String() }

// SimpleIdentifier returns the bare name if e is an unqualified identifier.
func SimpleIdentifier(e Expression) (string, bool) {
	id, ok := e.(*Identifier)
	if !ok || id.Ident.Qualified {
		return "", false
	}
	return id.Ident.Name, true
}

// BinaryOp is one of the four arithmetic operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
)

func (op BinaryOp) symbol() byte {
	return "+-*/"[op]
}

// Binary applies an arithmetic operator to two subtrees.
type Binary struct {
	LHS, RHS Expression
	Op       BinaryOp
}

// NewBinary builds an arithmetic node.
func NewBinary(lhs, rhs Expression, op BinaryOp) *Binary {
	return &Binary{LHS: lhs, RHS: rhs, Op: op}
}

func (b *Binary) Evaluate(ctx LookupContext) (int, error) {
	lhs, err := b.LHS.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	rhs, err := b.RHS.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	switch b.Op {
	case OpAdd:
		return lhs + rhs, nil
	case OpSubtract:
		return lhs - rhs, nil
	case OpMultiply:
		return lhs * rhs, nil
	default:
		if rhs == 0 {
			return 0, asmerr.New("division by zero")
		}
		return lhs / rhs, nil
	}
}

func (b *Binary) Type() addr.NumericType {
	return addr.ArithmeticConversion(b.LHS.Type(), b.RHS.Type())
}
func (b *Binary) RequiresLookup() bool {
	return b.LHS.RequiresLookup() || b.RHS.RequiresLookup()
}
func (b *Binary) ModuleRefs(out map[string]bool) {
	b.LHS.ModuleRefs(out)
	b.RHS.ModuleRefs(out)
}
func (b *Binary) Clone() Expression {
	return &Binary{LHS: b.LHS.Clone(), RHS: b.RHS.Clone(), Op: b.Op}
}
func (b *Binary) String() string {
	return fmt.Sprintf("op%c(%s, %s)", b.Op.symbol(), b.LHS, b.RHS)
}

// UnaryOp is one of the unary operators: negation and the three byte
// extractors.
type UnaryOp uint8

const (
	OpNegate UnaryOp = iota
	OpLowByte
	OpHighByte
	OpBankByte
)

func (op UnaryOp) symbol() byte {
	return "-<>^"[op]
}

// Unary applies a unary operator to a subtree.
type Unary struct {
	Arg Expression
	Op  UnaryOp
}

// NewUnary builds a unary node.
func NewUnary(arg Expression, op UnaryOp) *Unary {
	return &Unary{Arg: arg, Op: op}
}

func (u *Unary) Evaluate(ctx LookupContext) (int, error) {
	value, err := u.Arg.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	switch u.Op {
	case OpNegate:
		return -value, nil
	case OpLowByte:
		return value & 0xff, nil
	case OpHighByte:
		return (value >> 8) & 0xff, nil
	default:
		return (value >> 16) & 0xff, nil
	}
}

func (u *Unary) Type() addr.NumericType {
	if u.Op == OpNegate {
		return addr.Signed(u.Arg.Type())
	}
	return addr.Byte
}
func (u *Unary) RequiresLookup() bool           { return u.Arg.RequiresLookup() }
func (u *Unary) ModuleRefs(out map[string]bool) { u.Arg.ModuleRefs(out) }
func (u *Unary) Clone() Expression {
	return &Unary{Arg: u.Arg.Clone(), Op: u.Op}
}
func (u *Unary) String() string {
	return fmt.Sprintf("op%c(%s)", u.Op.symbol(), u.Arg)
}

// Label replaces an expression's rendering with a symbolic name while
// deferring type and size questions to the wrapped value.  It exists only on
// the disassembly side; labels never evaluate.
type Label struct {
	Name string
	Held Expression
}

func (l *Label) Evaluate(ctx LookupContext) (int, error) {
	return 0, asmerr.New("can't evaluate labels")
}
func (l *Label) Type() addr.NumericType         { return l.Held.Type() }
func (l *Label) RequiresLookup() bool           { return true }
func (l *Label) ModuleRefs(out map[string]bool) {}
func (l *Label) Clone() Expression {
	return &Label{Name: l.Name, Held: l.Held.Clone()}
}
func (l *Label) String() string { return l.Name }

// ApplyLabel attaches a label name to e.  A bare expression is wrapped; an
// expression already labeled just has its name replaced.  Labels never nest.
func ApplyLabel(e Expression, name string) Expression {
	if l, ok := e.(*Label); ok {
		l.Name = name
		return l
	}
	return &Label{Name: name, Held: e}
}

// IsLabel reports whether e carries a label.
func IsLabel(e Expression) bool {
	_, ok := e.(*Label)
	return ok
}
