package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/hpmcpatch/internal/config"
	"github.com/san-kum/hpmcpatch/internal/experiment"
)

// ErrNoResult is returned when no grid point could be evaluated.
var ErrNoResult = errors.New("optim: no grid point evaluated")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search evaluates every point of the grid and returns the one with the
// smallest value. Points whose evaluation fails are skipped; cancelling ctx
// stops the search.
func (g *GridSearch) Search(
	ctx context.Context,
	evaluate func(ctx context.Context, params map[string]float64) (float64, error),
) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("optim: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64

	if err := g.searchRecursive(ctx, 0, make(map[string]float64), evaluate, &best, &bestParams); err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, ErrNoResult
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	evaluate func(context.Context, map[string]float64) (float64, error),
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		val, err := evaluate(ctx, current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return nil
		}
		if val < *best || *bestParams == nil {
			*best = val
			*bestParams = make(map[string]float64, len(current))
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, evaluate, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of base with params set. Names are "kt", "move",
// "param.N" for the potential's parameter N and "constituent.N" for its
// constituent parameter N.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := *base
	pot, err := base.ResolvePotential()
	if err != nil {
		return nil, err
	}
	pot.Params = append([]float32(nil), pot.Params...)
	pot.ConstituentParams = append([]float32(nil), pot.ConstituentParams...)

	for name, v := range params {
		switch {
		case name == "kt":
			cfg.KT = v
		case name == "move":
			cfg.MoveSize = v
		case strings.HasPrefix(name, "param."):
			if err := setIndexed(pot.Params, name, "param.", v); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, "constituent."):
			if err := setIndexed(pot.ConstituentParams, name, "constituent.", v); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("optim: unknown parameter %q", name)
		}
	}
	cfg.Potential = pot
	return &cfg, nil
}

func setIndexed(vs []float32, name, prefix string, v float64) error {
	i, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil || i < 0 || i >= len(vs) {
		return fmt.Errorf("optim: %q does not name one of %d values", name, len(vs))
	}
	vs[i] = float32(v)
	return nil
}

// RunMetric evaluates a grid point by running base with the point applied
// and reading metricName from the run's metrics.
func RunMetric(base *config.Config, metricName string) func(context.Context, map[string]float64) (float64, error) {
	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg, err := Apply(base, params)
		if err != nil {
			return 0, err
		}
		_, meta, err := experiment.Execute(ctx, cfg, nil)
		if err != nil {
			return 0, err
		}
		v, ok := meta.Metrics[metricName]
		if !ok {
			return 0, fmt.Errorf("optim: run has no metric %q", metricName)
		}
		return v, nil
	}
}

// ParseRange reads "name=v1,v2,..." as used on the command line.
func ParseRange(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("optim: range %q is not name=v1,v2,...", s)
	}
	var vals []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("optim: range %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}
