package iptrail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeGeo serves lookups. When own is non-nil FetchOwnGeolocation signals
// started and then blocks until a result arrives on own.
type fakeGeo struct {
	mu       sync.Mutex
	searches []string

	started chan struct{}
	own     chan GeoRecord
	ownErr  error

	searchErr error

	// When searchGate is non-nil SearchIP signals searchStarted and
	// waits for searchGate to be closed.
	searchStarted chan struct{}
	searchGate    chan struct{}
}

func (f *fakeGeo) FetchOwnGeolocation(ctx context.Context) (GeoRecord, error) {
	if f.own == nil {
		if f.ownErr != nil {
			return GeoRecord{}, f.ownErr
		}
		return GeoRecord{IP: "203.0.113.7", City: "Lisbon"}, nil
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	select {
	case rec := <-f.own:
		return rec, nil
	case <-ctx.Done():
		return GeoRecord{}, ctx.Err()
	}
}

func (f *fakeGeo) SearchIP(_ context.Context, ip string) (GeoRecord, error) {
	f.mu.Lock()
	f.searches = append(f.searches, ip)
	f.mu.Unlock()
	if f.searchGate != nil {
		f.searchStarted <- struct{}{}
		<-f.searchGate
	}
	if f.searchErr != nil {
		return GeoRecord{}, f.searchErr
	}
	return GeoRecord{IP: ip, City: "Mountain View"}, nil
}

func (f *fakeGeo) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestLateAutoLoadDoesNotOverwriteSearch(t *testing.T) {
	geo := &fakeGeo{started: make(chan struct{}), own: make(chan GeoRecord)}
	c := NewCoordinator(geo, nil, nil)

	done := make(chan error)
	go func() { done <- c.AutoLoad(context.Background()) }()
	<-geo.started

	if s := c.State(); s.Status != StatusLoading {
		t.Fatalf("State during auto-load = %v, want loading", s.Status)
	}

	if err := c.Search(context.Background(), "8.8.8.8"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	// The auto-load response arrives after the search committed.
	geo.own <- GeoRecord{IP: "203.0.113.7"}
	if err := <-done; err != nil {
		t.Fatalf("AutoLoad: %v", err)
	}

	s := c.State()
	if s.Status != StatusReady || s.Record == nil || s.Record.IP != "8.8.8.8" {
		t.Errorf("State = %+v, want Ready(8.8.8.8)", s)
	}
}

func TestSearchInvalidAddressSkipsServer(t *testing.T) {
	inputs := []string{"999.1.1.1", "", "1.2.3", "8.8.8.8 ", "example.com"}

	for _, input := range inputs {
		geo := &fakeGeo{}
		c := NewCoordinator(geo, nil, nil)

		var states []LookupState
		c.OnChange = func(s LookupState) { states = append(states, s) }

		err := c.Search(context.Background(), input)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Search(%q) err = %v, want ErrInvalidInput", input, err)
		}
		if n := geo.searchCount(); n != 0 {
			t.Errorf("Search(%q) made %d remote calls, want 0", input, n)
		}

		s := c.State()
		if s.Status != StatusFailed || s.Reason != ReasonInvalidAddress {
			t.Errorf("Search(%q) state = %+v, want Failed(%s)", input, s, ReasonInvalidAddress)
		}
		if c.Query() != input {
			t.Errorf("Query = %q, want %q", c.Query(), input)
		}
		for _, st := range states {
			if st.Status == StatusLoading {
				t.Errorf("Search(%q) passed through loading", input)
			}
		}
	}
}

func TestInvalidSearchSupersedesAutoLoad(t *testing.T) {
	geo := &fakeGeo{started: make(chan struct{}), own: make(chan GeoRecord)}
	c := NewCoordinator(geo, nil, nil)

	done := make(chan error)
	go func() { done <- c.AutoLoad(context.Background()) }()
	<-geo.started

	c.Search(context.Background(), "999.1.1.1")
	geo.own <- GeoRecord{IP: "203.0.113.7"}
	<-done

	if s := c.State(); s.Status != StatusFailed || s.Reason != ReasonInvalidAddress {
		t.Errorf("State = %+v, want Failed(%s)", s, ReasonInvalidAddress)
	}
}

func TestSearchRefreshesHistory(t *testing.T) {
	refresher := &countingRefresher{}
	c := NewCoordinator(&fakeGeo{}, refresher, nil)

	if err := c.Search(context.Background(), "1.1.1.1"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if refresher.count() != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.count())
	}

	// A failed search leaves the history alone.
	c.Search(context.Background(), "999.1.1.1")
	if refresher.count() != 1 {
		t.Errorf("refresh calls after invalid search = %d, want 1", refresher.count())
	}
}

func TestSupersededSearchStillRefreshesHistory(t *testing.T) {
	geo := &fakeGeo{searchStarted: make(chan struct{}), searchGate: make(chan struct{})}
	refresher := &countingRefresher{}
	c := NewCoordinator(geo, refresher, nil)

	done := make(chan error)
	go func() { done <- c.Search(context.Background(), "8.8.8.8") }()
	<-geo.searchStarted

	// The user replays a row while the search is in flight.
	c.Replay(HistoryEntry{ID: "1", IPAddress: "1.1.1.1"})
	close(geo.searchGate)
	if err := <-done; err != nil {
		t.Fatalf("Search: %v", err)
	}

	if s := c.State(); s.Record == nil || s.Record.IP != "1.1.1.1" {
		t.Errorf("State = %+v, want the replayed record", s)
	}
	if refresher.count() != 1 {
		t.Errorf("refresh calls = %d, want 1: the server recorded the search", refresher.count())
	}
}

func TestResetSkipsRefreshAfterSearch(t *testing.T) {
	geo := &fakeGeo{searchStarted: make(chan struct{}), searchGate: make(chan struct{})}
	refresher := &countingRefresher{}
	c := NewCoordinator(geo, refresher, nil)

	done := make(chan error)
	go func() { done <- c.Search(context.Background(), "8.8.8.8") }()
	<-geo.searchStarted

	c.Reset()
	close(geo.searchGate)
	<-done

	if s := c.State(); s.Status != StatusIdle {
		t.Errorf("State after Reset = %+v, want idle", s)
	}
	if refresher.count() != 0 {
		t.Errorf("refresh calls = %d, want 0 after Reset", refresher.count())
	}
}

func TestSearchSurfacesUnauthorizedRefresh(t *testing.T) {
	refresher := &countingRefresher{err: fmt.Errorf("fetch history: %w", ErrUnauthorized)}
	c := NewCoordinator(&fakeGeo{}, refresher, nil)

	if err := c.Search(context.Background(), "8.8.8.8"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if s := c.State(); s.Status != StatusReady || s.Record.IP != "8.8.8.8" {
		t.Errorf("State = %+v, want Ready(8.8.8.8)", s)
	}

	// Other refresh failures stay out of the search result.
	refresher.err = ErrNetwork
	if err := c.Search(context.Background(), "1.1.1.1"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestFailedSearchKeepsPriorRecord(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"network", ErrNetwork},
		{"upstream", &UpstreamError{StatusCode: 502, Message: "provider down"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &fakeGeo{searchErr: tt.err}
			c := NewCoordinator(geo, nil, nil)
			if err := c.AutoLoad(context.Background()); err != nil {
				t.Fatalf("AutoLoad: %v", err)
			}

			if err := c.Search(context.Background(), "8.8.8.8"); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if s := c.State(); s.Status != StatusReady || s.Record.IP != "203.0.113.7" {
				t.Errorf("State = %+v, want the prior record", s)
			}
			if c.Query() != "8.8.8.8" {
				t.Errorf("Query = %q, want the submitted input", c.Query())
			}
		})
	}
}

func TestSearchFailureReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"network", ErrNetwork, "network error"},
		{"unauthorized", ErrUnauthorized, "unauthorized"},
		{"upstream message", &UpstreamError{StatusCode: 502, Message: "provider down"}, "provider down"},
		{"upstream without message", &UpstreamError{StatusCode: 500}, "lookup failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(&fakeGeo{searchErr: tt.err}, nil, nil)
			if err := c.Search(context.Background(), "8.8.8.8"); !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if s := c.State(); s.Status != StatusFailed || s.Reason != tt.reason {
				t.Errorf("State = %+v, want Failed(%q)", s, tt.reason)
			}
		})
	}
}

func TestReplayAndClear(t *testing.T) {
	geo := &fakeGeo{}
	c := NewCoordinator(geo, nil, nil)

	c.Replay(HistoryEntry{ID: "3", IPAddress: "1.1.1.1", City: "Sydney", Location: "-33.8688,151.2093"})
	s := c.State()
	if s.Status != StatusReady || s.Record.IP != "1.1.1.1" || s.Record.Loc != "-33.8688,151.2093" {
		t.Errorf("State after Replay = %+v", s)
	}
	if geo.searchCount() != 0 {
		t.Error("Replay should not contact the server")
	}

	c.Search(context.Background(), "999.1.1.1")
	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Query() != "" {
		t.Errorf("Query after Clear = %q, want empty", c.Query())
	}
	if s := c.State(); s.Status != StatusReady || s.Record.IP != "203.0.113.7" {
		t.Errorf("State after Clear = %+v, want own location", s)
	}
}

func TestAutoLoadFailure(t *testing.T) {
	c := NewCoordinator(&fakeGeo{ownErr: ErrNetwork}, nil, nil)
	if err := c.AutoLoad(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if s := c.State(); s.Status != StatusFailed || s.Reason != "network error" {
		t.Errorf("State = %+v, want Failed(network error)", s)
	}
}

func TestResetDiscardsInFlight(t *testing.T) {
	geo := &fakeGeo{started: make(chan struct{}), own: make(chan GeoRecord)}
	c := NewCoordinator(geo, nil, nil)

	done := make(chan error)
	go func() { done <- c.AutoLoad(context.Background()) }()
	<-geo.started

	c.Reset()
	geo.own <- GeoRecord{IP: "203.0.113.7"}
	<-done

	if s := c.State(); s.Status != StatusIdle || s.Record != nil {
		t.Errorf("State after Reset = %+v, want idle", s)
	}
}
