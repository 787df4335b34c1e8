package whitelist

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/gate"
	"gate-monitor/internal/utils"
)

// Store is the read side of the whitelist. The admin surface owns writes.
type Store interface {
	Snapshot(ctx context.Context) ([]gate.WhitelistEntry, error)
}

// Resolver answers "is this plate authorized, and as what role". It holds
// a cached whitelist snapshot refreshed once per TTL so the pipeline does
// not hit the database for every observation. Decisions are made against
// the snapshot current at call time and are never revisited.
type Resolver struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger

	mu        sync.Mutex
	snapshot  map[string]string
	fetchedAt time.Time
	now       func() time.Time
}

func NewResolver(store Store, ttl time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// Resolve normalizes the plate and looks it up in the cached snapshot.
// No match means Unauthorized. A store failure keeps serving the last
// good snapshot; with no snapshot at all the plate resolves Unauthorized
// after a logged warning.
func (r *Resolver) Resolve(ctx context.Context, plate string) (bool, string) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return false, gate.RoleUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil || r.now().Sub(r.fetchedAt) > r.ttl {
		r.refreshLocked(ctx)
	}

	role, ok := r.snapshot[normalized]
	if !ok {
		return false, gate.RoleUnauthorized
	}
	return true, role
}

// Invalidate drops the cached snapshot so the next Resolve refetches.
// Called after whitelist admin mutations.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}

func (r *Resolver) refreshLocked(ctx context.Context) {
	entries, err := r.store.Snapshot(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("whitelist refresh failed, keeping cached snapshot")
		if r.snapshot == nil {
			r.snapshot = map[string]string{}
			r.fetchedAt = r.now()
		}
		return
	}

	snapshot := make(map[string]string, len(entries))
	for _, e := range entries {
		snapshot[utils.NormalizePlate(e.VehicleNumber)] = e.AuthorizedAs
	}
	r.snapshot = snapshot
	r.fetchedAt = r.now()
}
