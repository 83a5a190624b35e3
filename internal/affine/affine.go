package affine

import (
	"fmt"
	"strings"
)

// Expr is a linear expression over dimension identifiers d0..dN:
//
//	c0*d0 + c1*d1 + ... + Constant
//
// Only the linear subset of affine expressions is modeled; it is closed
// under substitution, which is all the index arithmetic here needs.
type Expr struct {
	Coeffs   []int64
	Constant int64
}

// Dim returns the expression for dimension pos.
func Dim(pos int) Expr {
	coeffs := make([]int64, pos+1)
	coeffs[pos] = 1
	return Expr{Coeffs: coeffs}
}

// Const returns a constant expression.
func Const(c int64) Expr {
	return Expr{Constant: c}
}

func (e Expr) coeff(pos int) int64 {
	if pos < len(e.Coeffs) {
		return e.Coeffs[pos]
	}
	return 0
}

// normalized drops trailing zero coefficients so that equal expressions
// compare equal.
func (e Expr) normalized() Expr {
	n := len(e.Coeffs)
	for n > 0 && e.Coeffs[n-1] == 0 {
		n--
	}
	if n == 0 {
		return Expr{Constant: e.Constant}
	}
	coeffs := make([]int64, n)
	copy(coeffs, e.Coeffs[:n])
	return Expr{Coeffs: coeffs, Constant: e.Constant}
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr {
	n := max(len(e.Coeffs), len(o.Coeffs))
	coeffs := make([]int64, n)
	for i := range coeffs {
		coeffs[i] = e.coeff(i) + o.coeff(i)
	}
	return Expr{Coeffs: coeffs, Constant: e.Constant + o.Constant}.normalized()
}

// AddConst returns e + c.
func (e Expr) AddConst(c int64) Expr {
	return e.Add(Const(c))
}

// Sub returns e - o.
func (e Expr) Sub(o Expr) Expr {
	return e.Add(o.Scale(-1))
}

// Scale returns e * c.
func (e Expr) Scale(c int64) Expr {
	coeffs := make([]int64, len(e.Coeffs))
	for i, k := range e.Coeffs {
		coeffs[i] = k * c
	}
	return Expr{Coeffs: coeffs, Constant: e.Constant * c}.normalized()
}

// IsConstant reports whether e does not depend on any dimension.
func (e Expr) IsConstant() (int64, bool) {
	for _, k := range e.Coeffs {
		if k != 0 {
			return 0, false
		}
	}
	return e.Constant, true
}

// AsDim reports whether e is exactly a single dimension.
func (e Expr) AsDim() (int, bool) {
	if e.Constant != 0 {
		return 0, false
	}
	pos := -1
	for i, k := range e.Coeffs {
		switch k {
		case 0:
		case 1:
			if pos >= 0 {
				return 0, false
			}
			pos = i
		default:
			return 0, false
		}
	}
	return pos, pos >= 0
}

// MaxDim returns the highest dimension e uses, or -1.
func (e Expr) MaxDim() int {
	for i := len(e.Coeffs) - 1; i >= 0; i-- {
		if e.Coeffs[i] != 0 {
			return i
		}
	}
	return -1
}

// Replace substitutes dims[i] for every occurrence of dimension i.
func (e Expr) Replace(dims []Expr) Expr {
	out := Const(e.Constant)
	for i, k := range e.Coeffs {
		if k == 0 {
			continue
		}
		out = out.Add(dims[i].Scale(k))
	}
	return out
}

// Eval evaluates e for the given dimension values.
func (e Expr) Eval(dims []int64) int64 {
	v := e.Constant
	for i, k := range e.Coeffs {
		if k != 0 {
			v += k * dims[i]
		}
	}
	return v
}

// Equal reports structural equality.
func (e Expr) Equal(o Expr) bool {
	a, b := e.normalized(), o.normalized()
	if a.Constant != b.Constant || len(a.Coeffs) != len(b.Coeffs) {
		return false
	}
	for i := range a.Coeffs {
		if a.Coeffs[i] != b.Coeffs[i] {
			return false
		}
	}
	return true
}

func (e Expr) String() string {
	var sb strings.Builder
	first := true
	term := func(neg bool, body string) {
		switch {
		case first && neg:
			sb.WriteString("-")
		case !first && neg:
			sb.WriteString(" - ")
		case !first:
			sb.WriteString(" + ")
		}
		sb.WriteString(body)
		first = false
	}
	for i, k := range e.Coeffs {
		switch {
		case k == 0:
		case k == 1 || k == -1:
			term(k < 0, fmt.Sprintf("d%d", i))
		default:
			term(k < 0, fmt.Sprintf("d%d * %d", i, abs(k)))
		}
	}
	if e.Constant != 0 || first {
		if first {
			sb.WriteString(fmt.Sprintf("%d", e.Constant))
		} else {
			term(e.Constant < 0, fmt.Sprintf("%d", abs(e.Constant)))
		}
	}
	return sb.String()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
