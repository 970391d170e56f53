package iptrail

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
)

// HistorySource is the remote side of the history manager.
type HistorySource interface {
	FetchHistory(ctx context.Context) ([]HistoryEntry, error)
	DeleteHistory(ctx context.Context, ids []ID) error
}

// HistoryManager owns the lookup history and the multi-select set.
// The selection is always a subset of the ids in the collection.
type HistoryManager struct {
	mu     sync.Mutex
	remote HistorySource
	logger *log.Logger

	entries  []HistoryEntry
	selected map[ID]struct{}

	gen     uint64 // latest refresh generation
	loading int
	err     error
}

// NewHistoryManager creates an empty history manager.
func NewHistoryManager(remote HistorySource, logger *log.Logger) *HistoryManager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &HistoryManager{
		remote:   remote,
		logger:   logger,
		selected: make(map[ID]struct{}),
	}
}

// Refresh replaces the collection from the server and drops selected ids
// that are no longer present.
func (h *HistoryManager) Refresh(ctx context.Context) error {
	return h.refresh(ctx, false)
}

// Reload replaces the collection from the server and clears the selection.
func (h *HistoryManager) Reload(ctx context.Context) error {
	return h.refresh(ctx, true)
}

func (h *HistoryManager) refresh(ctx context.Context, resetSelection bool) error {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.loading++
	h.mu.Unlock()

	entries, err := h.remote.FetchHistory(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.loading--

	if gen != h.gen {
		// A newer refresh or a reset owns the collection now.
		return err
	}
	if err != nil {
		h.err = err
		return err
	}

	h.err = nil
	h.entries = entries
	if resetSelection {
		h.selected = make(map[ID]struct{})
		return nil
	}

	present := make(map[ID]struct{}, len(entries))
	for _, e := range entries {
		present[e.ID] = struct{}{}
	}
	for id := range h.selected {
		if _, ok := present[id]; !ok {
			delete(h.selected, id)
		}
	}
	return nil
}

// Toggle flips the selection of id. Unknown ids are ignored.
func (h *HistoryManager) Toggle(id ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.containsLocked(id) {
		return
	}
	if _, ok := h.selected[id]; ok {
		delete(h.selected, id)
	} else {
		h.selected[id] = struct{}{}
	}
}

// ToggleAll clears the selection when every entry is selected and
// otherwise selects every entry.
func (h *HistoryManager) ToggleAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) > 0 && len(h.selected) == len(h.entries) {
		h.selected = make(map[ID]struct{})
		return
	}

	h.selected = make(map[ID]struct{}, len(h.entries))
	for _, e := range h.entries {
		h.selected[e.ID] = struct{}{}
	}
}

// DeleteSelected deletes the selected entries and then always refreshes,
// since the server gives no atomicity guarantee. It is a no-op when
// nothing is selected. The deleted ids leave the selection only when the
// server acknowledged the delete.
func (h *HistoryManager) DeleteSelected(ctx context.Context) error {
	h.mu.Lock()
	if len(h.selected) == 0 {
		h.mu.Unlock()
		return nil
	}
	ids := make([]ID, 0, len(h.selected))
	for _, e := range h.entries {
		if _, ok := h.selected[e.ID]; ok {
			ids = append(ids, e.ID)
		}
	}
	h.mu.Unlock()

	delErr := h.remote.DeleteHistory(ctx, ids)
	if delErr == nil {
		h.mu.Lock()
		for _, id := range ids {
			delete(h.selected, id)
		}
		h.mu.Unlock()
	}

	if err := h.Refresh(ctx); err != nil {
		h.logger.Printf("history: refresh after delete failed: %v", err)
		if delErr == nil {
			return fmt.Errorf("history: refresh after delete: %w", err)
		}
	}
	return delErr
}

// Reset empties the collection and selection and makes in-flight
// refreshes stale. It is called on teardown, e.g. logout.
func (h *HistoryManager) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.gen++
	h.entries = nil
	h.selected = make(map[ID]struct{})
	h.err = nil
}

// Entries returns a copy of the collection in server order.
func (h *HistoryManager) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Lookup returns the entry with the given id.
func (h *HistoryManager) Lookup(id ID) (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.entries {
		if e.ID == id {
			return e, true
		}
	}
	return HistoryEntry{}, false
}

// Selected returns the selected ids in collection order.
func (h *HistoryManager) Selected() []ID {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ID, 0, len(h.selected))
	for _, e := range h.entries {
		if _, ok := h.selected[e.ID]; ok {
			out = append(out, e.ID)
		}
	}
	return out
}

// IsSelected reports whether id is selected.
func (h *HistoryManager) IsSelected(id ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.selected[id]
	return ok
}

// AllSelected reports whether every entry is selected.
func (h *HistoryManager) AllSelected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries) > 0 && len(h.selected) == len(h.entries)
}

// Loading reports whether a refresh is in flight.
func (h *HistoryManager) Loading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.loading > 0
}

// Err returns the error of the last committed refresh, if it failed.
func (h *HistoryManager) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}

func (h *HistoryManager) containsLocked(id ID) bool {
	for _, e := range h.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
