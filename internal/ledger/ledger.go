// Package ledger is the durable store of saved lineups. Every mutation is
// written through a storage.BlobStore before it becomes visible in memory,
// and statistics are computed from the stored set on every read.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betsync/internal/storage"
)

// DefaultStorageKey is the blob key the ledger is persisted under
const DefaultStorageKey = "betsync_saved_lineups"

// Events emitted after a mutation is persisted
const (
	EventSaved    = "lineupSaved"
	EventUpdated  = "lineupUpdated"
	EventDeleted  = "lineupDeleted"
	EventImported = "lineupsImported"
)

// Notification describes a persisted mutation. Lineup is set for saves and
// updates, ID for deletes, Count for imports.
type Notification struct {
	Event  string
	Lineup *Lineup
	ID     string
	Count  int
}

// Option configures a Ledger
type Option func(*Ledger)

// WithStorageKey overrides DefaultStorageKey
func WithStorageKey(key string) Option {
	return func(l *Ledger) {
		if key != "" {
			l.key = key
		}
	}
}

// WithLogger sets the ledger logger
func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides uuid-based lineup ids
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) {
		if newID != nil {
			l.newID = newID
		}
	}
}

// Ledger holds every saved lineup keyed by id
type Ledger struct {
	store  storage.BlobStore
	key    string
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	mu      sync.RWMutex
	lineups map[string]Lineup

	subsMu sync.RWMutex
	subs   map[string][]*subscriber
}

type subscriber struct {
	fn func(Notification)
}

// Open loads the ledger stored under the storage key. A missing blob yields
// an empty ledger; individual records that fail validation are logged and
// dropped.
func Open(ctx context.Context, store storage.BlobStore, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:   store,
		key:     DefaultStorageKey,
		logger:  log.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
		lineups: make(map[string]Lineup),
		subs:    make(map[string][]*subscriber),
	}
	for _, opt := range opts {
		opt(l)
	}

	data, err := store.GetBlob(ctx, l.key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}
	for id, rec := range raw {
		lineup, err := decodeLineup(rec)
		if err != nil {
			l.logger.Printf("WARNING | Ledger: dropping stored lineup %s: %v", id, err)
			continue
		}
		l.lineups[lineup.ID] = lineup
	}

	l.logger.Printf("Ledger | loaded %d lineups", len(l.lineups))
	return l, nil
}

// Save assigns an id and creation time, initializes progress from the pick
// count and persists the lineup
func (l *Ledger) Save(ctx context.Context, in NewLineup) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	status := in.Status
	if status == "" {
		status = StatusPending
	}
	picks := in.Picks
	if picks == nil {
		picks = []Pick{}
	}

	lineup := Lineup{
		ID:              l.newID(),
		Name:            in.Name,
		Category:        in.Category,
		Picks:           picks,
		EntryAmount:     in.EntryAmount,
		ProjectedPayout: in.ProjectedPayout,
		CreatedAt:       l.now().UTC(),
		Status:          status,
		Progress:        &Progress{TotalPicks: len(picks)},
		Metadata:        in.Metadata,
	}
	lineup = lineup.clone()

	l.mu.Lock()
	next := l.copyMap()
	next[lineup.ID] = lineup
	err := l.commit(ctx, next)
	l.mu.Unlock()
	if err != nil {
		return "", err
	}

	l.logger.Printf("Ledger | saved lineup %s (%s, %d picks)", lineup.Name, lineup.Category, len(lineup.Picks))
	saved := lineup.clone()
	l.emit(Notification{Event: EventSaved, Lineup: &saved, ID: lineup.ID})
	return lineup.ID, nil
}

// Update merges patch into the lineup. It returns false when id is unknown.
// Status may move pending to active or any non-terminal state to cancelled;
// completion only happens through UpdateProgress.
func (l *Ledger) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	l.mu.Lock()
	current, ok := l.lineups[id]
	if !ok {
		l.mu.Unlock()
		return false, nil
	}

	lineup := current.clone()
	if err := applyPatch(&lineup, patch); err != nil {
		l.mu.Unlock()
		return false, err
	}

	next := l.copyMap()
	next[id] = lineup
	err := l.commit(ctx, next)
	l.mu.Unlock()
	if err != nil {
		return false, err
	}

	updated := lineup.clone()
	l.emit(Notification{Event: EventUpdated, Lineup: &updated, ID: id})
	return true, nil
}

func applyPatch(lineup *Lineup, patch Patch) error {
	if patch.Name != nil {
		if *patch.Name == "" {
			return ErrMissingName
		}
		lineup.Name = *patch.Name
	}
	if patch.EntryAmount != nil {
		if patch.EntryAmount.IsNegative() {
			return ErrNegativeAmount
		}
		lineup.EntryAmount = *patch.EntryAmount
	}
	if patch.ProjectedPayout != nil {
		if patch.ProjectedPayout.IsNegative() {
			return ErrNegativeAmount
		}
		lineup.ProjectedPayout = *patch.ProjectedPayout
	}
	if patch.ActualResult != nil {
		if patch.ActualResult.IsNegative() {
			return ErrNegativeAmount
		}
		r := *patch.ActualResult
		lineup.ActualResult = &r
	}
	if patch.Metadata != nil {
		m := *patch.Metadata
		m.Tags = append([]string(nil), patch.Metadata.Tags...)
		lineup.Metadata = &m
	}
	if patch.Status != nil && *patch.Status != lineup.Status {
		if err := checkTransition(lineup.Status, *patch.Status); err != nil {
			return err
		}
		lineup.Status = *patch.Status
	}
	return nil
}

func checkTransition(from, to Status) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s lineup cannot become %s", ErrInvalidTransition, from, to)
	}
	switch to {
	case StatusCancelled:
		return nil
	case StatusActive:
		if from == StatusPending {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}

// UpdateProgress settles picks. The first settlement moves a pending lineup
// to active; settling the last pick completes it. It returns false when id
// is unknown.
func (l *Ledger) UpdateProgress(ctx context.Context, id string, results []PickResult) (bool, error) {
	l.mu.Lock()
	current, ok := l.lineups[id]
	if !ok {
		l.mu.Unlock()
		return false, nil
	}

	lineup := current.clone()
	if err := settle(&lineup, results); err != nil {
		l.mu.Unlock()
		return false, err
	}

	next := l.copyMap()
	next[id] = lineup
	err := l.commit(ctx, next)
	l.mu.Unlock()
	if err != nil {
		return false, err
	}

	if lineup.Status == StatusCompleted {
		l.logger.Printf("Ledger | lineup %s completed (%d won, %d lost, %d push)",
			lineup.Name, lineup.Progress.WonPicks, lineup.Progress.LostPicks, lineup.Progress.PushPicks)
	}
	updated := lineup.clone()
	l.emit(Notification{Event: EventUpdated, Lineup: &updated, ID: id})
	return true, nil
}

func settle(lineup *Lineup, results []PickResult) error {
	if lineup.Status.Terminal() {
		return fmt.Errorf("%w: lineup is %s", ErrInvalidTransition, lineup.Status)
	}
	if lineup.Progress == nil {
		lineup.Progress = &Progress{TotalPicks: len(lineup.Picks)}
	}

	known := make(map[string]bool, len(lineup.Picks))
	for _, p := range lineup.Picks {
		known[p.ID] = true
	}

	p := *lineup.Progress
	for _, r := range results {
		if !known[r.PickID] {
			return fmt.Errorf("%w: %s", ErrUnknownPick, r.PickID)
		}
		switch r.Result {
		case OutcomeWon:
			p.WonPicks++
		case OutcomeLost:
			p.LostPicks++
		case OutcomePush:
			p.PushPicks++
		default:
			return fmt.Errorf("%w: %q", ErrInvalidResult, r.Result)
		}
	}
	p.SettledPicks = p.WonPicks + p.LostPicks + p.PushPicks
	if p.SettledPicks > p.TotalPicks {
		return fmt.Errorf("%w: %d settled of %d", ErrTooManyResults, p.SettledPicks, p.TotalPicks)
	}

	lineup.Progress = &p
	lineup.Status = StatusActive
	if p.SettledPicks == p.TotalPicks {
		lineup.Status = StatusCompleted
	}
	return nil
}

// Delete removes a lineup. It returns false when id is unknown.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	if _, ok := l.lineups[id]; !ok {
		l.mu.Unlock()
		return false, nil
	}
	next := l.copyMap()
	delete(next, id)
	err := l.commit(ctx, next)
	l.mu.Unlock()
	if err != nil {
		return false, err
	}

	l.emit(Notification{Event: EventDeleted, ID: id})
	return true, nil
}

// Get returns a copy of one lineup
func (l *Ledger) Get(id string) (Lineup, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lineup, ok := l.lineups[id]
	if !ok {
		return Lineup{}, false
	}
	return lineup.clone(), true
}

// List returns copies of the matching lineups, newest first
func (l *Ledger) List(f Filter) []Lineup {
	l.mu.RLock()
	out := make([]Lineup, 0, len(l.lineups))
	for _, lineup := range l.lineups {
		if f.match(&lineup) {
			out = append(out, lineup.clone())
		}
	}
	l.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

// Len returns the number of stored lineups
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.lineups)
}

func sortNewestFirst(lineups []Lineup) {
	sort.Slice(lineups, func(i, j int) bool {
		a, b := lineups[i], lineups[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Subscribe registers fn for event. The returned func removes exactly this
// registration.
func (l *Ledger) Subscribe(event string, fn func(Notification)) (unsubscribe func()) {
	sub := &subscriber{fn: fn}

	l.subsMu.Lock()
	l.subs[event] = append(l.subs[event], sub)
	l.subsMu.Unlock()

	return func() {
		l.subsMu.Lock()
		defer l.subsMu.Unlock()
		list := l.subs[event]
		for i, s := range list {
			if s == sub {
				l.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (l *Ledger) emit(n Notification) {
	l.subsMu.RLock()
	list := append([]*subscriber(nil), l.subs[n.Event]...)
	l.subsMu.RUnlock()

	for _, sub := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Printf("WARNING | Ledger: %s subscriber panicked: %v", n.Event, r)
				}
			}()
			sub.fn(n)
		}()
	}
}

// copyMap returns a shallow copy of the lineup map. Stored values are never
// modified in place, so sharing them is safe. Caller holds l.mu.
func (l *Ledger) copyMap() map[string]Lineup {
	next := make(map[string]Lineup, len(l.lineups)+1)
	for id, lineup := range l.lineups {
		next[id] = lineup
	}
	return next
}

// commit writes next to storage and only then makes it current. Caller holds
// l.mu for writing.
func (l *Ledger) commit(ctx context.Context, next map[string]Lineup) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := l.store.SetBlob(ctx, l.key, data); err != nil {
		l.logger.Printf("WARNING | Ledger: failed to persist %d lineups: %v", len(next), err)
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	l.lineups = next
	return nil
}

// decodeLineup parses and validates one stored or imported record. Records
// written by older clients carry type and savedAt instead of category and
// createdAt.
func decodeLineup(data []byte) (Lineup, error) {
	var rec struct {
		Lineup
		Type    Category  `json:"type"`
		SavedAt time.Time `json:"savedAt"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Lineup{}, err
	}

	lineup := rec.Lineup
	if lineup.Category == "" {
		lineup.Category = rec.Type
	}
	if lineup.CreatedAt.IsZero() {
		lineup.CreatedAt = rec.SavedAt
	}
	if lineup.Status == "" {
		lineup.Status = StatusPending
	}
	if err := lineup.Validate(); err != nil {
		return Lineup{}, err
	}
	if lineup.Progress == nil {
		lineup.Progress = &Progress{TotalPicks: len(lineup.Picks)}
	}
	return lineup, nil
}
