// Package ast defines the parser -> compiler boundary (spec §6.1): the
// annotated-process tagged union the parser hands to the semantic database,
// and nothing else. No parsing logic lives here — the concrete grammar and
// tree-sitter parse step are out of scope; callers (tests, or a future
// external parser) construct trees directly with these constructors.
package ast

import "github.com/standardbeagle/rholang-core/internal/types"

// Kind discriminates the members of the annotated-process tagged union.
type Kind uint8

const (
	KindNil Kind = iota
	KindUnit
	KindBool
	KindLong
	KindString
	KindURI
	KindSimpleType
	KindProcVar
	KindVarRef
	KindBinaryExp
	KindUnaryExp
	KindPar
	KindIfThenElse
	KindMatch
	KindCollection
	KindSend
	KindSendSync
	KindForComprehension
	KindLet
	KindNew
	KindContract
	KindBundle
	KindMethod
	KindEval
	KindUseBlock
	KindSelect
	KindBad
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "Nil"
	case KindUnit:
		return "Unit"
	case KindBool:
		return "Bool"
	case KindLong:
		return "Long"
	case KindString:
		return "String"
	case KindURI:
		return "Uri"
	case KindSimpleType:
		return "SimpleType"
	case KindProcVar:
		return "ProcVar"
	case KindVarRef:
		return "VarRef"
	case KindBinaryExp:
		return "BinaryExp"
	case KindUnaryExp:
		return "UnaryExp"
	case KindPar:
		return "Par"
	case KindIfThenElse:
		return "IfThenElse"
	case KindMatch:
		return "Match"
	case KindCollection:
		return "Collection"
	case KindSend:
		return "Send"
	case KindSendSync:
		return "SendSync"
	case KindForComprehension:
		return "ForComprehension"
	case KindLet:
		return "Let"
	case KindNew:
		return "New"
	case KindContract:
		return "Contract"
	case KindBundle:
		return "Bundle"
	case KindMethod:
		return "Method"
	case KindEval:
		return "Eval"
	case KindUseBlock:
		return "UseBlock"
	case KindSelect:
		return "Select"
	case KindBad:
		return "Bad"
	default:
		return "Unknown"
	}
}

// VarRefKind distinguishes the two forms a "var-ref" pattern occurrence can
// take: a plain variable reference, or a quoted-process reference (`=x`).
type VarRefKind uint8

const (
	VarRefPlain VarRefKind = iota
	VarRefQuoted
)

// BinOp enumerates the binary operators a BinaryExp node may carry.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpConcat // ++
	OpDiff   // --
	OpMatches
)

// UnaryOp enumerates the unary operators a UnaryExp node may carry.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota // arithmetic/process negation
	OpNot
)

// CollectionKind discriminates the Collection node's literal kind.
type CollectionKind uint8

const (
	CollectionList CollectionKind = iota
	CollectionSet
	CollectionTuple
	CollectionMap
)

// SendType discriminates a Send node's dispatch arity.
type SendType uint8

const (
	SendSingle   SendType = iota // !
	SendMultiple                 // !!
)

// BundleType discriminates a Bundle node's capability restriction.
type BundleType uint8

const (
	BundleReadWrite BundleType = iota
	BundleReadOnly
	BundleWriteOnly
	BundleEquiv
)

// Arrow is the bind connective of one Receipt. Mirrors types.ArrowType but
// is kept distinct here since it annotates raw AST, prior to resolution.
type Arrow = types.ArrowType

// MapEntry is a single key/value pair of a Collection{Map} literal.
type MapEntry struct {
	Key   *Process
	Value *Process
}

// Bind is one binding of a for-comprehension receipt: `pattern <- channel`
// (or <=, <<-).
type Bind struct {
	Patterns []*Process
	Channel  *Process
	Arrow    Arrow
}

// Receipt is one parallel join group of a for-comprehension: `p1 <- c1 & p2 <- c2`.
type Receipt struct {
	Binds []Bind
}

// MatchCase is one `pattern => body` arm of a Match node.
type MatchCase struct {
	Pattern *Process
	Body    *Process
}

// LetBinding is one `x <- rhs` (or `x = rhs`) clause of a Let node.
type LetBinding struct {
	Pattern *Process
	Value   *Process
}

// NameDecl is one declaration of a New node: `x` or `x(Uri)`.
type NameDecl struct {
	Name types.Symbol
	URI  string
	Pos  types.SourcePos
}

// SelectBranch is one `pattern => body` arm of a Select node.
type SelectBranch struct {
	Patterns []*Process
	Body     *Process
}

// Process is the single node type realizing the annotated-process tagged
// union (§6.1). Only the fields relevant to Kind are populated; the zero
// value of every other field is ignored by all passes. Child nodes are
// shared by address — the semantic database keys off Process pointer
// identity, not structural equality, matching the spec's by-address
// equality requirement.
type Process struct {
	Kind Kind
	Span types.SourceSpan

	// Ground literals.
	BoolVal bool
	IntVal  int64
	StrVal  string
	URIVal  string

	// ProcVar / VarRef.
	VarName    types.Symbol
	VarRefKind VarRefKind

	// BinaryExp / UnaryExp.
	BinOp   BinOp
	UnaryOp UnaryOp
	Left    *Process
	Right   *Process
	Operand *Process

	// Par.
	ParLeft  *Process
	ParRight *Process

	// IfThenElse.
	Cond *Process
	Then *Process
	Else *Process

	// Match.
	MatchExpr  *Process
	MatchCases []MatchCase

	// Collection.
	CollKind  CollectionKind
	Elems     []*Process
	MapEntrs  []MapEntry
	Remainder *Process // non-nil if the collection pattern has `...rest`

	// Send / SendSync.
	Channel    *Process
	Inputs     []*Process
	SendType   SendType
	Hyperparam *Process // optional; nil when absent
	Cont       *Process // SendSync continuation

	// ForComprehension.
	Receipts []Receipt
	Body     *Process

	// Let.
	LetBindings  []LetBinding
	LetBody      *Process
	LetConcurrent bool

	// New.
	NewDecls []NameDecl
	NewBody  *Process

	// Contract.
	ContractName    *Process
	ContractFormals []*Process
	ContractBody    *Process

	// Bundle.
	BundleType BundleType
	BundleBody *Process

	// Method.
	Receiver *Process
	MethName types.Symbol
	Args     []*Process

	// Eval: `*name`.
	EvalName *Process

	// UseBlock.
	UseSpace *Process
	UseBody  *Process

	// Select.
	SelectBranches []SelectBranch

	// Bad: parse-level error placeholder, carries no further data beyond Span.
}

// IterPreorder calls visit for p and then recursively for every child, in a
// deterministic left-to-right, top-down order. This is the traversal the
// semantic database uses to assign PIDs (spec §4.2 build_index): two
// syntactically identical subtrees at different source positions are
// distinct Process pointers and so receive distinct PIDs.
//
// Go goroutine stacks grow on demand, so — unlike the traversal this is
// grounded on — no explicit stack-growth primitive is needed for
// pathologically deep trees; plain recursion is sufficient.
func (p *Process) IterPreorder(visit func(*Process)) {
	if p == nil {
		return
	}
	visit(p)
	for _, c := range p.children() {
		c.IterPreorder(visit)
	}
}

// children returns the direct child nodes of p in source order, skipping
// nils. Centralizing the traversal here keeps every pass (SemDB indexing,
// resolver, elaborator) in agreement about tree shape.
func (p *Process) children() []*Process {
	var out []*Process
	add := func(c *Process) {
		if c != nil {
			out = append(out, c)
		}
	}
	switch p.Kind {
	case KindBinaryExp:
		add(p.Left)
		add(p.Right)
	case KindUnaryExp:
		add(p.Operand)
	case KindPar:
		add(p.ParLeft)
		add(p.ParRight)
	case KindIfThenElse:
		add(p.Cond)
		add(p.Then)
		add(p.Else)
	case KindMatch:
		add(p.MatchExpr)
		for _, c := range p.MatchCases {
			add(c.Pattern)
			add(c.Body)
		}
	case KindCollection:
		for _, e := range p.Elems {
			add(e)
		}
		for _, e := range p.MapEntrs {
			add(e.Key)
			add(e.Value)
		}
		add(p.Remainder)
	case KindSend:
		add(p.Channel)
		for _, in := range p.Inputs {
			add(in)
		}
		add(p.Hyperparam)
	case KindSendSync:
		add(p.Channel)
		for _, in := range p.Inputs {
			add(in)
		}
		add(p.Cont)
	case KindForComprehension:
		for _, r := range p.Receipts {
			for _, b := range r.Binds {
				for _, pat := range b.Patterns {
					add(pat)
				}
				add(b.Channel)
			}
		}
		add(p.Body)
	case KindLet:
		for _, b := range p.LetBindings {
			add(b.Pattern)
			add(b.Value)
		}
		add(p.LetBody)
	case KindNew:
		add(p.NewBody)
	case KindContract:
		add(p.ContractName)
		for _, f := range p.ContractFormals {
			add(f)
		}
		add(p.ContractBody)
	case KindBundle:
		add(p.BundleBody)
	case KindMethod:
		add(p.Receiver)
		for _, a := range p.Args {
			add(a)
		}
	case KindEval:
		add(p.EvalName)
	case KindUseBlock:
		add(p.UseSpace)
		add(p.UseBody)
	case KindSelect:
		for _, br := range p.SelectBranches {
			for _, pat := range br.Patterns {
				add(pat)
			}
			add(br.Body)
		}
	}
	return out
}
