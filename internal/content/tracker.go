// Package content is the single source of truth for "is this content new
// enough to announce, and has it already been announced".
package content

import (
	"context"
	"strings"
	"sync"
	"time"

	"herald/internal/storage"
	logx "herald/pkg/logx"
)

// Tracker owns the content lifecycle map. Persistence through the store is
// fire-and-forget and never gates a decision.
type Tracker struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store storage.Store // may be nil

	states       map[string]*State
	processStart time.Time
}

func New(cfg Config, store storage.Store, log logx.Logger) *Tracker {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{
		cfg:          cfg,
		log:          log,
		store:        store,
		states:       map[string]*State{},
		processStart: time.Now(),
	}
}

// Load hydrates tracked states from the store so announced flags survive a
// restart. Best-effort: a failed load logs a warning and starts empty.
func (t *Tracker) Load(ctx context.Context) {
	if t.store == nil {
		return
	}
	recs, err := t.store.AllContentStates(ctx)
	if err != nil {
		t.log.Warn("content state load failed; starting empty", logx.Err(err))
		return
	}
	t.mu.Lock()
	for _, r := range recs {
		if r.ID == "" {
			continue
		}
		t.states[r.ID] = stateFromRecord(r)
	}
	n := len(t.states)
	t.mu.Unlock()
	if n > 0 {
		t.log.Info("content states loaded", logx.Int("count", n))
	}
}

// Add creates a record for id with current timestamps.
func (t *Tracker) Add(id string, init State) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	now := time.Now()
	st := init
	st.ID = id
	st.FirstSeen = now
	st.LastUpdated = now

	t.mu.Lock()
	t.states[id] = &st
	snapshot := st
	t.mu.Unlock()

	t.persistAsync(snapshot)
	return nil
}

// Update merges patch into an existing record and refreshes LastUpdated.
func (t *Tracker) Update(id string, patch Patch) error {
	t.mu.Lock()
	st, ok := t.states[id]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownID
	}
	if patch.Type != "" {
		st.Type = patch.Type
	}
	if patch.Phase != "" {
		st.Phase = patch.Phase
	}
	if !patch.PublishedAt.IsZero() {
		st.PublishedAt = patch.PublishedAt
	}
	if patch.Source != "" {
		st.Source = patch.Source
	}
	if patch.URL != "" {
		st.URL = patch.URL
	}
	if patch.Title != "" {
		st.Title = patch.Title
	}
	if patch.Meta != nil {
		if st.Meta == nil {
			st.Meta = map[string]string{}
		}
		for k, v := range patch.Meta {
			st.Meta[k] = v
		}
	}
	st.LastUpdated = time.Now()
	snapshot := *st
	t.mu.Unlock()

	t.persistAsync(snapshot)
	return nil
}

// IsNew decides whether content is new enough to announce.
//
// Tracked ids re-evaluate idempotently as !announced. Missing publish times
// fail closed (treated as old). Otherwise content is accepted iff it was
// published after process start, or we are still inside the start grace
// window and the content is within the configured max age. This exact
// compound condition is the contract; do not "improve" it without calling
// the change out in review.
func (t *Tracker) IsNew(id string, publishedAt, detectedAt time.Time) bool {
	t.mu.Lock()
	st, tracked := t.states[id]
	start := t.processStart
	maxAge := t.cfg.MaxAge
	var announced bool
	if tracked {
		announced = st.Announced
	}
	t.mu.Unlock()

	if tracked {
		return !announced
	}
	if publishedAt.IsZero() {
		return false
	}
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	age := detectedAt.Sub(publishedAt)
	withinAgeLimit := age <= maxAge
	afterProcessStart := !publishedAt.Before(start)
	withinStartGrace := detectedAt.Sub(start) <= startGracePeriod

	return afterProcessStart || (withinStartGrace && withinAgeLimit)
}

// MarkAnnounced flips the monotonic announced bit.
func (t *Tracker) MarkAnnounced(id string) error {
	t.mu.Lock()
	st, ok := t.states[id]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownID
	}
	st.Announced = true
	st.LastUpdated = time.Now()
	snapshot := *st
	t.mu.Unlock()

	t.persistAsync(snapshot)
	return nil
}

// Get returns a copy of the tracked state.
func (t *Tracker) Get(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Cleanup removes records whose LastUpdated is older than twice the
// effective max age (or twice the explicit override). Returns the number of
// records removed from memory; store removal is best-effort.
func (t *Tracker) Cleanup(ctx context.Context, maxAge ...time.Duration) int {
	t.mu.Lock()
	effective := t.cfg.MaxAge
	if len(maxAge) > 0 && maxAge[0] > 0 {
		effective = maxAge[0]
	}
	cutoff := time.Now().Add(-2 * effective)

	var removed []string
	for id, st := range t.states {
		if st.LastUpdated.Before(cutoff) {
			removed = append(removed, id)
			delete(t.states, id)
		}
	}
	st := t.store
	t.mu.Unlock()

	if len(removed) > 0 {
		t.log.Debug("content cleanup", logx.Int("removed", len(removed)))
		if st != nil {
			go func() {
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := st.RemoveContentStates(rctx, removed); err != nil {
					t.log.Debug("content cleanup persist failed", logx.Err(err))
				}
			}()
		}
	}
	_ = ctx
	return len(removed)
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		Total:    len(t.states),
		ByPhase:  map[string]int{},
		ByType:   map[string]int{},
		BySource: map[string]int{},
	}
	for _, st := range t.states {
		if st.Announced {
			s.Announced++
		} else {
			s.Unannounced++
		}
		if st.Phase != "" {
			s.ByPhase[st.Phase]++
		}
		if st.Type != "" {
			s.ByType[string(st.Type)]++
		}
		if st.Source != "" {
			s.BySource[st.Source]++
		}
	}
	return s
}

// Reset drops all tracked state and restarts the grace window. This is the
// only path that un-announces content.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.states = map[string]*State{}
	t.processStart = time.Now()
	t.mu.Unlock()
}

func (t *Tracker) persistAsync(st State) {
	store := t.store
	if store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.PutContentState(ctx, recordFromState(st)); err != nil {
			t.log.Debug("content state persist failed", logx.String("id", st.ID), logx.Err(err))
		}
	}()
}

func recordFromState(st State) storage.ContentRecord {
	return storage.ContentRecord{
		ID:          st.ID,
		Type:        string(st.Type),
		Phase:       st.Phase,
		FirstSeen:   st.FirstSeen,
		LastUpdated: st.LastUpdated,
		PublishedAt: st.PublishedAt,
		Announced:   st.Announced,
		Source:      st.Source,
		URL:         st.URL,
		Title:       st.Title,
		Meta:        st.Meta,
	}
}

func stateFromRecord(r storage.ContentRecord) *State {
	return &State{
		ID:          r.ID,
		Type:        dedupContentType(r.Type),
		Phase:       r.Phase,
		FirstSeen:   r.FirstSeen,
		LastUpdated: r.LastUpdated,
		PublishedAt: r.PublishedAt,
		Announced:   r.Announced,
		Source:      r.Source,
		URL:         r.URL,
		Title:       r.Title,
		Meta:        r.Meta,
	}
}
