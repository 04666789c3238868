package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"tutorboard/pkg/types"
)

// source is the slice of the storage layer the provider reads. Satisfied by
// *store.Store.
type source interface {
	PricingTiers(ctx context.Context) ([]types.PricingTier, error)
	CountryGroups(ctx context.Context) (map[string]string, error)
	CountryGroupPoints(ctx context.Context) (map[string]int, error)
	JobUnlockCount(ctx context.Context, jobID string) (int, error)
}

// Provider serves quotes against a cached snapshot of the pricing reference
// tables. The tables change rarely, so quotes read the cache and Refresh
// swaps it atomically when the data is older than the refresh interval.
type Provider struct {
	src             source
	refreshInterval time.Duration

	mu        sync.RWMutex
	snapshot  *Snapshot
	refreshed time.Time
}

// NewProvider creates a provider. refreshInterval bounds snapshot staleness;
// zero or negative means refresh on every quote.
func NewProvider(src source, refreshInterval time.Duration) *Provider {
	return &Provider{
		src:             src,
		refreshInterval: refreshInterval,
	}
}

// Refresh loads the reference tables and replaces the cached snapshot.
func (p *Provider) Refresh(ctx context.Context) error {
	tiers, err := p.src.PricingTiers(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load pricing tiers")
	}
	groups, err := p.src.CountryGroups(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load country groups")
	}
	points, err := p.src.CountryGroupPoints(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load country group points")
	}

	p.mu.Lock()
	p.snapshot = &Snapshot{Tiers: tiers, CountryGroups: groups, GroupPoints: points}
	p.refreshed = time.Now()
	p.mu.Unlock()
	return nil
}

// Snapshot returns the cached reference data, refreshing it first when
// missing or stale.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	p.mu.RLock()
	snap := p.snapshot
	age := time.Since(p.refreshed)
	p.mu.RUnlock()

	if snap != nil && age < p.refreshInterval {
		return snap, nil
	}
	if err := p.Refresh(ctx); err != nil {
		if snap != nil {
			// Stale data beats no quote.
			return snap, nil
		}
		return nil, err
	}

	p.mu.RLock()
	snap = p.snapshot
	p.mu.RUnlock()
	return snap, nil
}

// QuoteJob prices a job at its current unlock count.
func (p *Provider) QuoteJob(ctx context.Context, job *types.Job, now time.Time) (int, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	count, err := p.src.JobUnlockCount(ctx, job.ID)
	if err != nil {
		return 0, err
	}
	return Quote(job, count, snap, now), nil
}
