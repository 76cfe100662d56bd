package restock

import (
	"context"
	"errors"
	"fmt"

	"stockguard/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Adjuster applies a single stock adjustment. The stock ledger satisfies it.
type Adjuster interface {
	Adjust(ctx context.Context, req model.StockAdjustmentRequest) (*model.StockHistory, error)
}

// Result summarises one restock run.
type Result struct {
	Manifests int
	Applied   int
	Failed    []LineError
}

// LineError records a line that could not be applied.
type LineError struct {
	Source string
	Line   int
	Err    error
}

func (e LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

// Applier loads manifests and applies every line as a RESTOCK.
type Applier struct {
	loader   Loader
	adjuster Adjuster
	actorID  string
	logger   zerolog.Logger
}

// NewApplier creates an applier. actorID is recorded on every audit entry.
func NewApplier(loader Loader, adjuster Adjuster, actorID string, logger zerolog.Logger) *Applier {
	return &Applier{
		loader:   loader,
		adjuster: adjuster,
		actorID:  actorID,
		logger:   logger.With().Str("component", "restock").Logger(),
	}
}

// LoadAll loads every manifest concurrently. Any load failure fails the run
// before a single line is applied.
func (a *Applier) LoadAll(ctx context.Context, paths []string) ([]*Manifest, error) {
	manifests := make([]*Manifest, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			m, err := a.loader.Load(gctx, path)
			if err != nil {
				return fmt.Errorf("failed to load manifest %s: %w", path, err)
			}
			manifests[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return manifests, nil
}

// Run loads the manifests and applies them in order. Lines rejected by the
// ledger with a domain error are collected and the run continues; any other
// error stops it.
func (a *Applier) Run(ctx context.Context, paths []string, reason string) (*Result, error) {
	manifests, err := a.LoadAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	result := &Result{Manifests: len(manifests)}
	for _, m := range manifests {
		for _, line := range m.Lines {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			_, err := a.adjuster.Adjust(ctx, model.StockAdjustmentRequest{
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Delta:     line.Quantity,
				Type:      model.ChangeRestock,
				Reason:    fmt.Sprintf("%s (%s:%d)", reason, m.Source, line.Number),
				ActorID:   a.actorID,
			})
			if err != nil {
				var domainErr *model.DomainError
				if !errors.As(err, &domainErr) {
					return result, fmt.Errorf("failed to apply %s:%d: %w", m.Source, line.Number, err)
				}
				a.logger.Warn().
					Err(err).
					Str("source", m.Source).
					Int("line", line.Number).
					Str("product_id", line.ProductID).
					Msg("restock line rejected")
				result.Failed = append(result.Failed, LineError{Source: m.Source, Line: line.Number, Err: err})
				continue
			}
			result.Applied++
		}
	}

	a.logger.Info().
		Int("manifests", result.Manifests).
		Int("applied", result.Applied).
		Int("failed", len(result.Failed)).
		Msg("restock run finished")

	return result, nil
}
