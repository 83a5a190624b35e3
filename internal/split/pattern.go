package split

import (
	"vecsplit/internal/ir"
	"vecsplit/internal/rewrite"
)

// Filter selects which candidate transfers are split.
type Filter func(xfer ir.TransferOp) bool

// FullPartialRewriter applies Split through the rewrite driver. Transfers
// that fail the precondition or the filter are reported as no match.
type FullPartialRewriter struct {
	Options Options
	Filter  Filter

	benefit int
}

// NewFullPartialRewriter creates the pattern. A nil filter accepts every
// transfer.
func NewFullPartialRewriter(opts Options, filter Filter, benefit int) *FullPartialRewriter {
	return &FullPartialRewriter{Options: opts, Filter: filter, benefit: benefit}
}

func (r *FullPartialRewriter) Name() string {
	return "vector-transfer-full-partial-split"
}

func (r *FullPartialRewriter) Benefit() int {
	return r.benefit
}

func (r *FullPartialRewriter) MatchAndRewrite(rw *rewrite.Rewriter, op ir.OpID) (bool, error) {
	p := rw.Program()
	xfer, ok := ir.AsTransfer(p, op)
	if !ok {
		return false, nil
	}
	if err := Precondition(p, op); err != nil {
		log.Debugf("%s: %s", p.Op(op).Loc, err)
		return false, nil
	}
	if xfer.ShapedType().Rank() != xfer.TransferRank() {
		log.Debugf("%s: rank-changing transfers are not split", p.Op(op).Loc)
		return false, nil
	}
	if r.Filter != nil && !r.Filter(xfer) {
		return false, nil
	}

	if _, err := Split(rw, op, r.Options); err != nil {
		if IsNotApplicable(err) {
			log.Debugf("%s: %s", p.Op(op).Loc, err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Eligibility returns nil when the pattern would try to split op, and
// otherwise an ErrNotApplicable cause naming the first check it fails. Only
// the checks that need no rewriting are run, so Split may still refuse an
// eligible transfer.
func Eligibility(p *ir.Program, op ir.OpID, filter Filter) error {
	if err := Precondition(p, op); err != nil {
		return err
	}
	xfer, _ := ir.AsTransfer(p, op)
	if xfer.Mask() != ir.NoValue {
		return notApplicable("masked transfers are not supported")
	}
	if sr, vr := xfer.ShapedType().Rank(), xfer.TransferRank(); sr != vr {
		return notApplicable("source rank %d does not match vector rank %d", sr, vr)
	}
	if filter != nil && !filter(xfer) {
		return notApplicable("rejected by filter")
	}
	return nil
}

// Candidates returns the transfers the pattern would try to split, in
// program order, without modifying p.
func Candidates(p *ir.Program, filter Filter) []ir.OpID {
	var out []ir.OpID
	for _, op := range p.Collect() {
		if _, ok := ir.AsTransfer(p, op); !ok {
			continue
		}
		if Eligibility(p, op, filter) == nil {
			out = append(out, op)
		}
	}
	return out
}
