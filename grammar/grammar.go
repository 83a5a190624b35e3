package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Program is a sequence of functions in the textual IR.
type Program struct {
	Funcs []*Func `@@*`
}

type Func struct {
	Pos     lexer.Position
	Name    string   `"func" @Symbol "("`
	Params  []*Param `[ @@ { "," @@ } ] ")"`
	Results []*Type  `[ "->" "(" [ @@ { "," @@ } ] ")" ]`
	Body    []*Op    `"{" @@* "}"`
}

type Param struct {
	Pos  lexer.Position
	Name string `@ValueRef ":"`
	Type *Type  `@@`
}

// Op is the generic operation form:
//
//	%r0, %r1 = kind(%a, %b) <{key = value}> : t0, t1 { ... } { ... }
type Op struct {
	Pos      lexer.Position
	Results  []string  `[ @ValueRef { "," @ValueRef } "=" ]`
	Name     string    `@Ident "("`
	Operands []string  `[ @ValueRef { "," @ValueRef } ] ")"`
	Attrs    []*Attr   `[ "<" "{" [ @@ { "," @@ } ] "}" ">" ]`
	Types    []*Type   `[ ":" @@ { "," @@ } ]`
	Regions  []*Region `@@*`
}

type Region struct {
	Pos  lexer.Position
	Args []*Param `"{" [ BlockLabel "(" [ @@ { "," @@ } ] ")" ":" ]`
	Ops  []*Op    `@@* "}"`
}

type Attr struct {
	Pos   lexer.Position
	Key   string     `@Ident "="`
	Value *AttrValue `@@`
}

type AttrValue struct {
	Map    *AffineMap `  @@`
	List   *List      `| @@`
	Scalar *Scalar    `| @@`
}

type List struct {
	Open  string    `@"["`
	Items []*Scalar `[ @@ { "," @@ } ] "]"`
}

type Scalar struct {
	Float   *float64 `  @Float`
	Int     *int64   `| @Int`
	Bool    *string  `| @("true" | "false")`
	Dynamic bool     `| @"?"`
	Ident   *string  `| @Ident`
}

type AffineMap struct {
	Dims    []string      `"affine_map" "<" "(" [ @Ident { "," @Ident } ] ")" "->"`
	Results []*AffineExpr `"(" [ @@ { "," @@ } ] ")" ">"`
}

// AffineExpr is a sum of terms: [-] term { (+|-) term }.
type AffineExpr struct {
	Neg  bool          `@"-"?`
	Head *AffineTerm   `@@`
	Tail []*AffineTail `@@*`
}

type AffineTail struct {
	Op   string      `@("+" | "-")`
	Term *AffineTerm `@@`
}

type AffineTerm struct {
	Const *int64     `  @Int`
	Dim   *AffineDim `| @@`
}

type AffineDim struct {
	Name  string `@Ident`
	Scale *int64 `[ "*" @Int ]`
}

type Type struct {
	Pos    lexer.Position
	Vector *VectorType `  "vector" "<" @@ ">"`
	MemRef *MemRefType `| "memref" "<" @@ ">"`
	Scalar string      `| @Ident`
}

type VectorType struct {
	Dims []string `@ShapeDim*`
	Elem *Type    `@@`
}

type MemRefType struct {
	Dims   []string `@ShapeDim*`
	Elem   *Type    `@@`
	Layout *Layout  `[ "," @@ ]`
}

type Layout struct {
	Strides []*Scalar `"strided" "<" "[" [ @@ { "," @@ } ] "]"`
	Offset  *Scalar   `[ "," "offset" ":" @@ ] ">"`
}
