package rewrite

import (
	"github.com/pkg/errors"

	"vecsplit/internal/ir"
)

// GreedyConfig controls ApplyPatternsGreedily.
type GreedyConfig struct {
	// TopDown visits ops in pre-order; otherwise in reverse pre-order.
	TopDown bool
	// MaxIterations bounds the number of sweeps over the program.
	MaxIterations int
	// MaxRewrites stops the driver after this many successful rewrites.
	// Zero means no limit.
	MaxRewrites int
}

func DefaultGreedyConfig() GreedyConfig {
	return GreedyConfig{TopDown: true, MaxIterations: 10}
}

// GreedyResult reports what the driver did.
type GreedyResult struct {
	Converged  bool
	Iterations int
	Rewrites   int
}

// ApplyPatternsGreedily sweeps the program applying the first matching
// pattern to each live op until a sweep changes nothing, the iteration
// budget runs out, or the rewrite limit is reached.
func ApplyPatternsGreedily(p *ir.Program, set *PatternSet, cfg GreedyConfig) (GreedyResult, error) {
	var res GreedyResult
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1
	}
	rw := NewRewriter(p)

	for res.Iterations < cfg.MaxIterations {
		res.Iterations++
		worklist := p.Collect()
		if !cfg.TopDown {
			for i, j := 0, len(worklist)-1; i < j; i, j = i+1, j-1 {
				worklist[i], worklist[j] = worklist[j], worklist[i]
			}
		}

		changed := false
		for _, op := range worklist {
			if p.IsErased(op) {
				continue
			}
			for _, pat := range set.Patterns() {
				ok, err := pat.MatchAndRewrite(rw, op)
				if err != nil {
					return res, errors.Wrapf(err, "pattern %s on %s", pat.Name(), p.Op(op).Kind)
				}
				if !ok {
					continue
				}
				log.Debugf("applied %s to %s", pat.Name(), p.Op(op).Kind)
				changed = true
				res.Rewrites++
				if cfg.MaxRewrites > 0 && res.Rewrites >= cfg.MaxRewrites {
					return res, nil
				}
				break
			}
		}
		if !changed {
			res.Converged = true
			break
		}
	}
	log.Debugf("greedy driver: %d rewrites in %d iterations (converged: %t)", res.Rewrites, res.Iterations, res.Converged)
	return res, nil
}
