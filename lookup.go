package iptrail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// ReasonInvalidAddress is the failure reason for search input that is not
// a dotted-quad IPv4 address.
const ReasonInvalidAddress = "invalid address"

// Status is the phase of a LookupState.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// LookupState is the single current-result slot.
// Record is set only when Status is StatusReady; Reason only when StatusFailed.
type LookupState struct {
	Status Status
	Record *GeoRecord
	Reason string
}

// Geolocator is the remote side of the lookup coordinator.
type Geolocator interface {
	FetchOwnGeolocation(ctx context.Context) (GeoRecord, error)
	SearchIP(ctx context.Context, ip string) (GeoRecord, error)
}

// Refresher is notified after a successful search.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Coordinator owns the current lookup result. Auto-load, manual search and
// history replay all compete for the slot; only the most recently started
// one may commit its result.
type Coordinator struct {
	mu      sync.Mutex
	remote  Geolocator
	history Refresher
	logger  *log.Logger

	seq   uint64
	epoch uint64 // bumped by Reset
	state LookupState
	query string

	// OnChange, if set, is called with every committed state.
	// It runs with no lock held.
	OnChange func(LookupState)
}

// NewCoordinator creates a coordinator. history may be nil.
func NewCoordinator(remote Geolocator, history Refresher, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{
		remote:  remote,
		history: history,
		logger:  logger,
	}
}

// State returns the current lookup state.
func (c *Coordinator) State() LookupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Query returns the current search input.
func (c *Coordinator) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// AutoLoad resolves the caller's own address.
func (c *Coordinator) AutoLoad(ctx context.Context) error {
	p := c.begin(nil, true)

	rec, err := c.remote.FetchOwnGeolocation(ctx)
	if err != nil {
		c.commit(p.token, failed(err))
		return err
	}
	c.commit(p.token, ready(rec))
	return nil
}

// Search validates input and resolves it. Invalid input fails with
// ReasonInvalidAddress without contacting the server. A network or upstream
// failure keeps the previously shown record. Every successful search asks
// the history to refresh, even when a newer producer owns the slot, unless
// the coordinator was reset in the meantime.
func (c *Coordinator) Search(ctx context.Context, input string) error {
	if !IsValidIPv4(input) {
		p := c.begin(&input, false)
		c.commit(p.token, LookupState{Status: StatusFailed, Reason: ReasonInvalidAddress})
		return fmt.Errorf("%w: %s: %q", ErrInvalidInput, ReasonInvalidAddress, input)
	}

	p := c.begin(&input, true)
	rec, err := c.remote.SearchIP(ctx, input)
	if err != nil {
		c.commit(p.token, searchFailed(p.prior, err))
		return err
	}
	c.commit(p.token, ready(rec))

	if c.history == nil || !c.live(p.epoch) {
		return nil
	}
	if err := c.history.Refresh(ctx); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return fmt.Errorf("lookup: history refresh after search: %w", err)
		}
		c.logger.Printf("lookup: history refresh after search failed: %v", err)
	}
	return nil
}

// Replay shows a history entry without any network round trip.
func (c *Coordinator) Replay(entry HistoryEntry) {
	p := c.begin(nil, false)
	c.commit(p.token, ready(entry.Record()))
}

// Clear empties the search input and re-runs AutoLoad.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.query = ""
	c.mu.Unlock()

	return c.AutoLoad(ctx)
}

// Reset returns to Idle and makes every in-flight request stale.
// It is called on teardown, e.g. logout.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.seq++
	c.epoch++
	c.state = LookupState{}
	c.query = ""
	onChange := c.OnChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(LookupState{})
	}
}

// producer identifies one started operation.
type producer struct {
	token uint64
	epoch uint64
	prior LookupState // slot contents before the producer started
}

// begin starts a producer. Older tokens become stale.
// query, if non-nil, replaces the search input. When loading is set the
// slot moves to Loading.
func (c *Coordinator) begin(query *string, loading bool) producer {
	c.mu.Lock()
	c.seq++
	p := producer{token: c.seq, epoch: c.epoch, prior: c.state}
	if query != nil {
		c.query = *query
	}
	if !loading {
		c.mu.Unlock()
		return p
	}
	c.state = LookupState{Status: StatusLoading}
	onChange := c.OnChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(LookupState{Status: StatusLoading})
	}
	return p
}

// live reports whether no Reset happened since epoch.
func (c *Coordinator) live(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// commit stores next if token is still current and reports whether it did.
func (c *Coordinator) commit(token uint64, next LookupState) bool {
	c.mu.Lock()
	if token != c.seq {
		c.mu.Unlock()
		return false
	}
	c.state = next
	onChange := c.OnChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
	return true
}

func ready(rec GeoRecord) LookupState {
	return LookupState{Status: StatusReady, Record: &rec}
}

func failed(err error) LookupState {
	return LookupState{Status: StatusFailed, Reason: failureReason(err)}
}

// searchFailed restores a settled prior state after a transport or
// upstream failure. Anything else, or an unsettled prior, becomes Failed.
func searchFailed(prior LookupState, err error) LookupState {
	settled := prior.Status == StatusReady || prior.Status == StatusFailed
	transient := errors.Is(err, ErrNetwork) || errors.Is(err, ErrUpstream) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if settled && transient {
		return prior
	}
	return failed(err)
}

// failureReason maps an error to a short reason for display.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return ReasonInvalidAddress
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNetwork):
		return "network error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "network error"
	}
	return UserMessage(err, "lookup failed")
}
