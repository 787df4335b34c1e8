package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"gate-monitor/internal/domain/gate"
	"gate-monitor/internal/tracker"
	"gate-monitor/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
)

const (
	finalizedBuffer = 256
	maxPending      = 1024
	retryInterval   = 5 * time.Second
	sweepInterval   = 500 * time.Millisecond
)

// EventStore persists finalized events and serves dashboard queries.
type EventStore interface {
	Create(ctx context.Context, event *gate.VehicleEvent) error
	List(ctx context.Context, filter gate.EventFilter) ([]gate.VehicleEvent, error)
	Delete(ctx context.Context, id int64) error
	MarkAlertSent(ctx context.Context, id int64) error
}

// WhitelistStore is the admin surface over the whitelist table.
type WhitelistStore interface {
	Snapshot(ctx context.Context) ([]gate.WhitelistEntry, error)
	Upsert(ctx context.Context, plate, authorizedAs string) (*gate.WhitelistEntry, error)
	Delete(ctx context.Context, id int64) error
}

// Resolver decides authorization for a plate at finalization time.
type Resolver interface {
	Resolve(ctx context.Context, plate string) (bool, string)
	Invalidate()
}

// Alerter sends at most one notification per event and reports success.
type Alerter interface {
	MaybeAlert(ctx context.Context, event *gate.VehicleEvent) bool
}

// Publisher broadcasts an event to live dashboard subscribers.
type Publisher interface {
	Publish(event *gate.VehicleEvent)
}

// GateService wires the pipeline together: tracker finalization feeds a
// bounded queue; a single consumer persists, alerts, and publishes each
// event in order. Frame ingestion never waits on storage or the
// notification channel.
type GateService struct {
	tracker   *tracker.Tracker
	resolver  Resolver
	events    EventStore
	whitelist WhitelistStore
	alerter   Alerter
	publisher Publisher
	log       zerolog.Logger

	trackerMu sync.Mutex
	finalized chan *gate.VehicleEvent

	pendingMu sync.Mutex
	pending   []*gate.VehicleEvent

	stop     chan struct{}
	stopOnce sync.Once
	stopped  sync.WaitGroup
}

func NewGateService(
	trk *tracker.Tracker,
	resolver Resolver,
	events EventStore,
	whitelist WhitelistStore,
	alerter Alerter,
	publisher Publisher,
	log zerolog.Logger,
) *GateService {
	return &GateService{
		tracker:   trk,
		resolver:  resolver,
		events:    events,
		whitelist: whitelist,
		alerter:   alerter,
		publisher: publisher,
		log:       log,
		finalized: make(chan *gate.VehicleEvent, finalizedBuffer),
		stop:      make(chan struct{}),
	}
}

// Start launches the consumer that drains finalized events.
func (s *GateService) Start() {
	s.stopped.Add(1)
	go s.run()
}

// Shutdown flushes in-flight tracks through the pipeline and waits for
// the consumer to drain.
func (s *GateService) Shutdown(ctx context.Context) {
	s.trackerMu.Lock()
	flushed := s.tracker.Flush()
	s.trackerMu.Unlock()
	for _, ev := range flushed {
		s.resolveAndEnqueue(ctx, ev)
	}

	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.stopped.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown deadline reached with events still in flight")
	}
}

// HandleObservation runs one detector observation through the tracker.
// Tracker work is synchronous so frame N+1 never outruns frame N; any
// events it finalizes are resolved against the whitelist immediately and
// handed to the async consumer.
func (s *GateService) HandleObservation(ctx context.Context, obs gate.RawObservation) {
	s.trackerMu.Lock()
	finalized := s.tracker.Ingest(obs)
	s.trackerMu.Unlock()

	for _, ev := range finalized {
		s.resolveAndEnqueue(ctx, ev)
	}
}

// SimulateEvent injects a synthetic event through the same
// resolve/persist/alert/publish path as a real passage. Admin tooling
// and integration checks use it.
func (s *GateService) SimulateEvent(ctx context.Context, plate, status string, confidence int) (*gate.VehicleEvent, error) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return nil, fmt.Errorf("%w: vehicle_number is required", ErrInvalidInput)
	}
	if status != gate.StatusIn && status != gate.StatusOut {
		status = gate.StatusIn
	}

	ev := &gate.VehicleEvent{
		VehicleNumber: normalized,
		VehicleType:   "Vehicle",
		Status:        status,
		TimeStamp:     time.Now().UTC(),
		Confidence:    confidence,
	}
	s.resolveAndEnqueue(ctx, ev)
	return ev, nil
}

func (s *GateService) resolveAndEnqueue(ctx context.Context, ev *gate.VehicleEvent) {
	// Authorization is fixed here, against the whitelist as of
	// finalization. Later whitelist edits never change this event.
	ev.IsAuthorized, ev.AuthorizedAs = s.resolver.Resolve(ctx, ev.VehicleNumber)

	select {
	case s.finalized <- ev:
	default:
		// queue full: hold rather than block the frame loop or drop data
		s.hold(ev)
	}
}

func (s *GateService) run() {
	defer s.stopped.Done()
	retry := time.NewTicker(retryInterval)
	defer retry.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case ev := <-s.finalized:
			s.commit(ev)
		case <-sweep.C:
			s.sweepTracker()
		case <-retry.C:
			s.retryPending()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

// sweepTracker finalizes tracks whose gap timeout elapsed with no
// successor frame, so a lone passage still produces its event.
func (s *GateService) sweepTracker() {
	s.trackerMu.Lock()
	expired := s.tracker.Sweep(time.Now())
	s.trackerMu.Unlock()

	for _, ev := range expired {
		s.resolveAndEnqueue(context.Background(), ev)
	}
}

func (s *GateService) drain() {
	for {
		select {
		case ev := <-s.finalized:
			s.commit(ev)
		default:
			s.retryPending()
			return
		}
	}
}

// commit persists one event, then alerts, then publishes. Persistence
// failure parks the event for retry; alert and publish failures are
// logged and swallowed.
func (s *GateService) commit(ev *gate.VehicleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.events.Create(ctx, ev); err != nil {
		s.log.Error().
			Err(err).
			Str("plate", ev.VehicleNumber).
			Msg("failed to persist vehicle event, holding for retry")
		s.hold(ev)
		return
	}

	s.log.Info().
		Int64("event_id", ev.ID).
		Str("plate", ev.VehicleNumber).
		Str("status", ev.Status).
		Bool("is_authorized", ev.IsAuthorized).
		Str("authorized_as", ev.AuthorizedAs).
		Int("confidence", ev.Confidence).
		Msg("saved vehicle event")

	if !ev.IsAuthorized {
		if s.alerter.MaybeAlert(ctx, ev) {
			if err := s.events.MarkAlertSent(ctx, ev.ID); err != nil {
				s.log.Error().Err(err).Int64("event_id", ev.ID).Msg("failed to record alert_sent")
			} else {
				ev.AlertSent = true
			}
		}
	}

	s.publisher.Publish(ev)
}

func (s *GateService) hold(ev *gate.VehicleEvent) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) >= maxPending {
		dropped := s.pending[0]
		s.pending = s.pending[1:]
		s.log.Error().
			Str("plate", dropped.VehicleNumber).
			Msg("pending buffer overflow, oldest event lost")
	}
	s.pending = append(s.pending, ev)
}

func (s *GateService) retryPending() {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	for _, ev := range batch {
		s.commit(ev)
	}
}

// ListEvents serves dashboard queries. With no date range the view
// defaults to today, matching what the dashboard shows on load.
func (s *GateService) ListEvents(ctx context.Context, filter gate.EventFilter) ([]gate.VehicleEvent, error) {
	if filter.DateFrom == nil && filter.DateTo == nil {
		now := time.Now()
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end := start.Add(24*time.Hour - time.Nanosecond)
		filter.DateFrom = &start
		filter.DateTo = &end
	}

	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return events, nil
}

// DeleteEvent removes one event; a missing id surfaces as ErrNotFound
// and touches nothing else.
func (s *GateService) DeleteEvent(ctx context.Context, id int64) error {
	err := s.events.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: event %d", ErrNotFound, id)
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

func (s *GateService) ListWhitelist(ctx context.Context) ([]gate.WhitelistEntry, error) {
	entries, err := s.whitelist.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return entries, nil
}

func (s *GateService) UpsertWhitelist(ctx context.Context, plate, authorizedAs string) (*gate.WhitelistEntry, error) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return nil, fmt.Errorf("%w: vehicle_number is required", ErrInvalidInput)
	}
	switch authorizedAs {
	case gate.RolePrincipal, gate.RoleFaculty, gate.RoleStaff, gate.RoleVan:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, authorizedAs)
	}

	entry, err := s.whitelist.Upsert(ctx, normalized, authorizedAs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.resolver.Invalidate()
	return entry, nil
}

func (s *GateService) DeleteWhitelist(ctx context.Context, id int64) error {
	err := s.whitelist.Delete(ctx, id)
	switch {
	case err == nil:
		s.resolver.Invalidate()
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: whitelist entry %d", ErrNotFound, id)
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}
