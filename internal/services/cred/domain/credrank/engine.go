// Package credrank computes cred: the stationary distribution of a Markov
// process graph, scaled so that cred totals the graph's node weight.
package credrank

import (
	"context"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/markov"
)

const (
	// DefaultMaxIterations caps power iteration.
	DefaultMaxIterations = 255
	// DefaultConvergenceThreshold is the L1 distance between iterates that stops iteration.
	DefaultConvergenceThreshold = 1e-7
)

var (
	// ErrInvalidParameters indicates unusable engine options.
	ErrInvalidParameters = apperrors.New(apperrors.CodeInvalidParameters, "invalid cred engine options")
	// ErrNonConvergence is reported by CredGraph.Warning when the iteration cap was hit.
	ErrNonConvergence = apperrors.New(apperrors.CodeNonConvergence, "cred did not converge")
)

// Progress reports one completed iteration.
type Progress struct {
	Iteration int
	Delta     float64
}

// Options tunes power iteration. Zero values select the defaults.
type Options struct {
	MaxIterations        int
	ConvergenceThreshold float64
	// Initial is the starting distribution, indexed like the process graph's
	// nodes. It is normalized; nil starts from the uniform distribution.
	Initial []float64
	// Workers splits each iteration across goroutines. Results do not depend on it.
	Workers    int
	OnProgress func(Progress)
}

func (o Options) withDefaults() (Options, error) {
	if o.MaxIterations < 0 {
		return o, apperrors.WithMetadata(apperrors.CodeInvalidParameters, "max iterations must not be negative", map[string]string{
			"maxIterations": strconv.Itoa(o.MaxIterations),
		})
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if math.IsNaN(o.ConvergenceThreshold) || o.ConvergenceThreshold < 0 {
		return o, apperrors.WithMetadata(apperrors.CodeInvalidParameters, "convergence threshold must be non-negative", map[string]string{
			"threshold": strconv.FormatFloat(o.ConvergenceThreshold, 'g', -1, 64),
		})
	}
	if o.ConvergenceThreshold == 0 {
		o.ConvergenceThreshold = DefaultConvergenceThreshold
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o, nil
}

// Convergence reports how power iteration finished.
type Convergence struct {
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	Delta      float64 `json:"delta"`
}

// chain is the process graph's transition matrix stored by incoming edge:
// row v lists every (u, P(u→v)).
type chain struct {
	rowStart []int
	src      []int
	prob     []float64
}

func newChain(mpg *markov.MarkovProcessGraph) chain {
	nodes := mpg.Nodes()
	incoming := make([][]int, len(nodes))
	weights := make([][]float64, len(nodes))
	for u, n := range nodes {
		for _, e := range mpg.OutEdges(n.Address) {
			v, _ := mpg.NodeIndex(e.Dst)
			incoming[v] = append(incoming[v], u)
			weights[v] = append(weights[v], e.Probability)
		}
	}

	c := chain{rowStart: make([]int, len(nodes)+1)}
	for v := range nodes {
		c.rowStart[v] = len(c.src)
		c.src = append(c.src, incoming[v]...)
		c.prob = append(c.prob, weights[v]...)
	}
	c.rowStart[len(nodes)] = len(c.src)
	return c
}

// step computes next[v] = Σ pi[u]·P(u→v) for rows [from, to).
func (c chain) step(pi, next []float64, from, to int) {
	for v := from; v < to; v++ {
		var sum float64
		for k := c.rowStart[v]; k < c.rowStart[v+1]; k++ {
			sum += pi[c.src[k]] * c.prob[k]
		}
		next[v] = sum
	}
}

// Run computes cred for mpg.
//
// Hitting MaxIterations is not an error: the last iterate is used and the
// returned graph's Warning reports the non-convergence.
func Run(ctx context.Context, mpg *markov.MarkovProcessGraph, opts Options) (*CredGraph, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	n := mpg.NodeCount()
	pi, err := initialDistribution(n, opts.Initial)
	if err != nil {
		return nil, err
	}

	c := newChain(mpg)
	next := make([]float64, n)
	chunk := (n + opts.Workers - 1) / opts.Workers
	convergence := Convergence{}
	for iteration := 1; iteration <= opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.Workers == 1 {
			c.step(pi, next, 0, n)
		} else {
			var g errgroup.Group
			for from := 0; from < n; from += chunk {
				to := min(from+chunk, n)
				g.Go(func() error {
					c.step(pi, next, from, to)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
		}

		var delta float64
		for v := range pi {
			delta += math.Abs(next[v] - pi[v])
		}
		pi, next = next, pi
		convergence = Convergence{Iterations: iteration, Delta: delta}
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Iteration: iteration, Delta: delta})
		}
		if delta < opts.ConvergenceThreshold {
			convergence.Converged = true
			break
		}
	}
	return newCredGraph(mpg, pi, convergence), nil
}

func initialDistribution(n int, initial []float64) ([]float64, error) {
	pi := make([]float64, n)
	if initial == nil {
		for i := range pi {
			pi[i] = 1 / float64(n)
		}
		return pi, nil
	}
	if len(initial) != n {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidParameters, "initial distribution has the wrong length", map[string]string{
			"got":  strconv.Itoa(len(initial)),
			"want": strconv.Itoa(n),
		})
	}
	var sum float64
	for i, v := range initial {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidParameters, "initial distribution must be finite and non-negative", map[string]string{
				"index": strconv.Itoa(i),
			})
		}
		sum += v
	}
	if sum <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidParameters, "initial distribution must have positive mass")
	}
	for i, v := range initial {
		pi[i] = v / sum
	}
	return pi, nil
}
