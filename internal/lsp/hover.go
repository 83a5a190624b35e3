package lsp

import (
	"fmt"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"vecsplit/internal/ir"
	"vecsplit/internal/split"
)

// TextDocumentHover explains, for a transfer on the hovered line, whether
// the split will rewrite it and why.
func (h *VecsplitHandler) TextDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, err := h.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	if doc.program == nil {
		return nil, nil
	}

	line := int(params.Position.Line) + 1
	for _, op := range doc.program.Collect() {
		xfer, ok := ir.AsTransfer(doc.program, op)
		if !ok || doc.program.Op(op).Loc.Line != line {
			continue
		}
		h.mu.RLock()
		cfg := h.config
		h.mu.RUnlock()
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: explain(xfer, cfg.SplitFilter(), cfg.Strategy),
			},
		}, nil
	}
	return nil, nil
}

func explain(xfer ir.TransferOp, filter split.Filter, strategy string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%s` from `%s`\n\n", xfer.Kind, xfer.VectorType(), xfer.ShapedType())

	var oob []string
	for i := 0; i < xfer.TransferRank(); i++ {
		if !xfer.IsDimInBounds(i) {
			oob = append(oob, fmt.Sprint(i))
		}
	}
	if len(oob) == 0 {
		b.WriteString("Every dimension is in bounds.")
		return b.String()
	}
	fmt.Fprintf(&b, "Dimensions %s may be out of bounds.\n\n", strings.Join(oob, ", "))

	if err := split.Eligibility(xfer.P, xfer.ID, filter); err != nil {
		fmt.Fprintf(&b, "Not split: %s.", err)
		return b.String()
	}
	switch s, _ := split.ParseStrategy(strategy); s {
	case split.None:
		b.WriteString("Eligible, but the configured strategy is `none`.")
	case split.ForceInBounds:
		b.WriteString("Strategy `force-in-bounds` marks every dimension in bounds without a runtime check.")
	default:
		fmt.Fprintf(&b, "Split with strategy `%s`: an `scf.if` on the in-bounds condition selects the source "+
			"or a `%s` scratch buffer, and the transfer becomes fully in bounds.", s, bufferType(xfer))
	}
	return b.String()
}

func bufferType(xfer ir.TransferOp) string {
	vt := xfer.VectorType()
	return ir.MemRef(vt.Elem, vt.Shape...).String()
}
