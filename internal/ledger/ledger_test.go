package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betsync/internal/storage"
)

var quiet = log.New(io.Discard, "", 0)

// flakyStore fails every write while fail is set
type flakyStore struct {
	*storage.MemoryStore
	fail bool
}

func (s *flakyStore) SetBlob(ctx context.Context, key string, data []byte) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.SetBlob(ctx, key, data)
}

// testLedger returns a ledger over store with sequential ids and a clock
// that advances one second per save
func testLedger(t *testing.T, store storage.BlobStore) *Ledger {
	t.Helper()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks, ids int
	l, err := Open(context.Background(), store,
		WithLogger(quiet),
		WithClock(func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks) * time.Second)
		}),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("lineup-%d", ids)
		}),
	)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return l
}

func threePicks() []Pick {
	return []Pick{
		{ID: "p1", Description: "LeBron over 25.5 pts", Choice: ChoiceOver},
		{ID: "p2", Description: "Curry over 4.5 threes", Choice: ChoiceOver},
		{ID: "p3", Description: "Jokic under 11.5 reb", Choice: ChoiceUnder},
	}
}

func saveLineup(t *testing.T, l *Ledger, in NewLineup) string {
	t.Helper()
	id, err := l.Save(context.Background(), in)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return id
}

func TestSave(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())

	var events []Notification
	l.Subscribe(EventSaved, func(n Notification) { events = append(events, n) })

	id := saveLineup(t, l, NewLineup{
		Name:        "Sunday slate",
		Category:    CategoryPrizePicks,
		Picks:       threePicks(),
		EntryAmount: decimal.NewFromInt(20),
		Metadata:    &Metadata{Confidence: 72, Source: "PrizePicks Pro"},
	})

	got, ok := l.Get(id)
	if !ok {
		t.Fatal("saved lineup not found")
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.Progress == nil || *got.Progress != (Progress{TotalPicks: 3}) {
		t.Errorf("Progress = %+v", got.Progress)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if len(events) != 1 || events[0].ID != id || events[0].Lineup.Name != "Sunday slate" {
		t.Errorf("events = %+v", events)
	}
}

func TestSave_Validation(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())

	tests := []struct {
		name string
		in   NewLineup
		want error
	}{
		{"missing name", NewLineup{Category: CategoryPrizePicks}, ErrMissingName},
		{"unknown category", NewLineup{Name: "x", Category: "parlay"}, ErrInvalidCategory},
		{"completed on save", NewLineup{Name: "x", Category: CategoryPrizePicks, Status: StatusCompleted}, ErrInvalidStatus},
		{"negative entry", NewLineup{Name: "x", Category: CategoryPrizePicks, EntryAmount: decimal.NewFromInt(-1)}, ErrNegativeAmount},
		{"duplicate pick", NewLineup{Name: "x", Category: CategoryPrizePicks, Picks: []Pick{{ID: "a"}, {ID: "a"}}}, ErrDuplicatePickID},
		{"bad choice", NewLineup{Name: "x", Category: CategoryPrizePicks, Picks: []Pick{{ID: "a", Choice: "sideways"}}}, ErrInvalidChoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Save(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Save() error = %v, want %v", err, tt.want)
			}
		})
	}
	if l.Len() != 0 {
		t.Errorf("invalid lineups were stored: %d", l.Len())
	}
}

func TestUpdateProgress_Completion(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "Three leg", Category: CategoryMoneyMaker, Picks: threePicks()})

	ok, err := l.UpdateProgress(ctx, id, []PickResult{
		{PickID: "p1", Result: OutcomeWon},
		{PickID: "p2", Result: OutcomeWon},
		{PickID: "p3", Result: OutcomeLost},
	})
	if !ok || err != nil {
		t.Fatalf("UpdateProgress() = %v, %v", ok, err)
	}

	got, _ := l.Get(id)
	if got.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	want := Progress{TotalPicks: 3, SettledPicks: 3, WonPicks: 2, LostPicks: 1, PushPicks: 0}
	if *got.Progress != want {
		t.Errorf("Progress = %+v, want %+v", *got.Progress, want)
	}
}

func TestUpdateProgress_Incremental(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "Slow burn", Category: CategoryPropOllama, Picks: threePicks()})

	l.UpdateProgress(ctx, id, []PickResult{{PickID: "p1", Result: OutcomePush}})
	got, _ := l.Get(id)
	if got.Status != StatusActive {
		t.Errorf("after first settlement Status = %s, want active", got.Status)
	}
	if got.Progress.SettledPicks != 1 || got.Progress.PushPicks != 1 {
		t.Errorf("Progress = %+v", *got.Progress)
	}

	_, err := l.UpdateProgress(ctx, id, []PickResult{
		{PickID: "p2", Result: OutcomeWon},
		{PickID: "p3", Result: OutcomeWon},
		{PickID: "p3", Result: OutcomeWon},
	})
	if !errors.Is(err, ErrTooManyResults) {
		t.Fatalf("over-settlement error = %v, want ErrTooManyResults", err)
	}
	if got, _ := l.Get(id); got.Progress.SettledPicks != 1 {
		t.Error("rejected settlement was applied")
	}

	if _, err := l.UpdateProgress(ctx, id, []PickResult{{PickID: "p9", Result: OutcomeWon}}); !errors.Is(err, ErrUnknownPick) {
		t.Errorf("unknown pick error = %v", err)
	}
	if _, err := l.UpdateProgress(ctx, id, []PickResult{{PickID: "p2", Result: "void"}}); !errors.Is(err, ErrInvalidResult) {
		t.Errorf("bad result error = %v", err)
	}

	if ok, err := l.UpdateProgress(ctx, "missing", nil); ok || err != nil {
		t.Errorf("unknown id = %v, %v", ok, err)
	}
}

func TestUpdateProgress_TerminalLineup(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "Scratched", Category: CategoryPrizePicks, Picks: threePicks()})

	cancelled := StatusCancelled
	if ok, err := l.Update(ctx, id, Patch{Status: &cancelled}); !ok || err != nil {
		t.Fatalf("cancel = %v, %v", ok, err)
	}
	if _, err := l.UpdateProgress(ctx, id, []PickResult{{PickID: "p1", Result: OutcomeWon}}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("settling a cancelled lineup: error = %v", err)
	}
}

func TestUpdate(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "Old", Category: CategoryPrizePicks, Picks: threePicks()})

	var updates int
	l.Subscribe(EventUpdated, func(Notification) { updates++ })

	name := "New"
	result := decimal.NewFromInt(40)
	if ok, err := l.Update(ctx, id, Patch{Name: &name, ActualResult: &result}); !ok || err != nil {
		t.Fatalf("Update() = %v, %v", ok, err)
	}
	got, _ := l.Get(id)
	if got.Name != "New" || !got.Result().Equal(result) || got.Category != CategoryPrizePicks {
		t.Errorf("after update = %+v", got)
	}
	if updates != 1 {
		t.Errorf("lineupUpdated emitted %d times", updates)
	}

	if ok, err := l.Update(ctx, "missing", Patch{Name: &name}); ok || err != nil {
		t.Errorf("unknown id = %v, %v", ok, err)
	}
}

func TestUpdate_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr error
	}{
		{"pending to active", StatusPending, StatusActive, nil},
		{"pending to cancelled", StatusPending, StatusCancelled, nil},
		{"active to cancelled", StatusActive, StatusCancelled, nil},
		{"active to completed", StatusActive, StatusCompleted, ErrInvalidTransition},
		{"active to pending", StatusActive, StatusPending, ErrInvalidTransition},
		{"cancelled to active", StatusCancelled, StatusActive, ErrInvalidTransition},
		{"unknown status", StatusPending, "archived", ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLedger(t, storage.NewMemoryStore())
			ctx := context.Background()

			initial := tt.from
			if initial == StatusCancelled {
				initial = StatusPending
			}
			id := saveLineup(t, l, NewLineup{Name: "x", Category: CategoryMoneyMaker, Status: initial})
			if tt.from == StatusCancelled {
				c := StatusCancelled
				l.Update(ctx, id, Patch{Status: &c})
			}

			to := tt.to
			_, err := l.Update(ctx, id, Patch{Status: &to})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
			}
			got, _ := l.Get(id)
			if tt.wantErr == nil && got.Status != tt.to {
				t.Errorf("Status = %s, want %s", got.Status, tt.to)
			}
			if tt.wantErr != nil && got.Status != tt.from {
				t.Errorf("Status changed to %s on rejected transition", got.Status)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "Gone", Category: CategoryPrizePicks})

	var deleted string
	l.Subscribe(EventDeleted, func(n Notification) { deleted = n.ID })

	if ok, err := l.Delete(ctx, id); !ok || err != nil {
		t.Fatalf("Delete() = %v, %v", ok, err)
	}
	if _, ok := l.Get(id); ok {
		t.Error("lineup still present")
	}
	if deleted != id {
		t.Errorf("lineupDeleted id = %q", deleted)
	}
	if ok, _ := l.Delete(ctx, id); ok {
		t.Error("second Delete() = true")
	}
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	first := saveLineup(t, l, NewLineup{Name: "a", Category: CategoryPrizePicks})
	second := saveLineup(t, l, NewLineup{Name: "b", Category: CategoryMoneyMaker, Status: StatusActive})
	third := saveLineup(t, l, NewLineup{Name: "c", Category: CategoryPrizePicks, Status: StatusActive})

	all := l.List(Filter{})
	if len(all) != 3 || all[0].ID != third || all[1].ID != second || all[2].ID != first {
		t.Fatalf("List() order = %v, %v, %v", all[0].ID, all[1].ID, all[2].ID)
	}

	pp := l.List(Filter{Category: CategoryPrizePicks, Status: StatusActive})
	if len(pp) != 1 || pp[0].ID != third {
		t.Errorf("filtered List() = %+v", pp)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	id := saveLineup(t, l, NewLineup{Name: "x", Category: CategoryPrizePicks, Picks: threePicks()})

	got, _ := l.Get(id)
	got.Picks[0].Description = "tampered"
	got.Progress.WonPicks = 99

	again, _ := l.Get(id)
	if again.Picks[0].Description == "tampered" || again.Progress.WonPicks != 0 {
		t.Error("Get() exposed internal state")
	}
}

func TestPersistenceFailureLeavesMemoryUntouched(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	l := testLedger(t, store)
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "Kept", Category: CategoryPrizePicks, Picks: threePicks()})

	var events int
	for _, ev := range []string{EventSaved, EventUpdated, EventDeleted, EventImported} {
		l.Subscribe(ev, func(Notification) { events++ })
	}

	store.fail = true

	if _, err := l.Save(ctx, NewLineup{Name: "Lost", Category: CategoryPrizePicks}); err == nil {
		t.Error("Save() succeeded on failing store")
	}
	name := "Renamed"
	if _, err := l.Update(ctx, id, Patch{Name: &name}); err == nil {
		t.Error("Update() succeeded on failing store")
	}
	if _, err := l.UpdateProgress(ctx, id, []PickResult{{PickID: "p1", Result: OutcomeWon}}); err == nil {
		t.Error("UpdateProgress() succeeded on failing store")
	}
	if _, err := l.Delete(ctx, id); err == nil {
		t.Error("Delete() succeeded on failing store")
	}

	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
	got, _ := l.Get(id)
	if got.Name != "Kept" || got.Progress.SettledPicks != 0 {
		t.Errorf("in-memory lineup advanced past storage: %+v", got)
	}
	if events != 0 {
		t.Errorf("%d events emitted for failed writes", events)
	}
}

func TestReopenRestoresLedger(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(storage.Config{Path: filepath.Join(dir, "ledger.db")})
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	defer db.Close()

	l := testLedger(t, db)
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{
		Name:            "Persisted",
		Category:        CategoryMoneyMaker,
		Picks:           threePicks(),
		EntryAmount:     decimal.RequireFromString("12.50"),
		ProjectedPayout: decimal.RequireFromString("60.25"),
	})
	l.UpdateProgress(ctx, id, []PickResult{{PickID: "p1", Result: OutcomeWon}})

	reopened, err := Open(ctx, db, WithLogger(quiet))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, ok := reopened.Get(id)
	if !ok {
		t.Fatal("lineup missing after reopen")
	}
	want, _ := l.Get(id)
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.EntryAmount.Equal(want.EntryAmount) ||
		!got.ProjectedPayout.Equal(want.ProjectedPayout) || *got.Progress != *want.Progress || got.Status != StatusActive {
		t.Errorf("reopened = %+v, want %+v", got, want)
	}
}

func TestOpen_DropsInvalidStoredRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	store.SetBlob(ctx, DefaultStorageKey, []byte(`{
		"good": {"id":"good","name":"ok","category":"prizepicks","picks":[],"createdAt":"2024-01-02T00:00:00Z","status":"active"},
		"bad":  {"id":"bad","category":"prizepicks","picks":[],"createdAt":"2024-01-02T00:00:00Z"}
	}`))

	l, err := Open(ctx, store, WithLogger(quiet))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	store.SetBlob(ctx, DefaultStorageKey, []byte(`not json`))
	if _, err := Open(ctx, store, WithLogger(quiet)); !errors.Is(err, ErrCorruptLedger) {
		t.Errorf("corrupt blob error = %v", err)
	}
}

func TestStats_MixedLineups(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()

	settleAll := func(entry, result int64, category Category, outcome Outcome) {
		id := saveLineup(t, l, NewLineup{
			Name:        "x",
			Category:    category,
			Picks:       []Pick{{ID: "only"}},
			EntryAmount: decimal.NewFromInt(entry),
		})
		if _, err := l.UpdateProgress(ctx, id, []PickResult{{PickID: "only", Result: outcome}}); err != nil {
			t.Fatal(err)
		}
		r := decimal.NewFromInt(result)
		if _, err := l.Update(ctx, id, Patch{ActualResult: &r}); err != nil {
			t.Fatal(err)
		}
	}
	settleAll(100, 250, CategoryMoneyMaker, OutcomeWon)
	settleAll(50, 0, CategoryPrizePicks, OutcomeLost)

	st := l.Stats()
	if st.CompletedLineups != 2 || st.TotalLineups != 2 {
		t.Fatalf("Stats() = %+v", st)
	}
	if math.Abs(st.ROI-0.667) > 0.001 {
		t.Errorf("ROI = %v, want ~0.667", st.ROI)
	}
	if st.WinRate != 0.5 {
		t.Errorf("WinRate = %v, want 0.5", st.WinRate)
	}
	if !st.TotalWinnings.Equal(decimal.NewFromInt(250)) || !st.TotalLosses.Equal(decimal.NewFromInt(50)) {
		t.Errorf("winnings/losses = %s/%s", st.TotalWinnings, st.TotalLosses)
	}
	if st.BestPerformingType != string(CategoryMoneyMaker) {
		t.Errorf("BestPerformingType = %s", st.BestPerformingType)
	}
}

func TestStats_Edges(t *testing.T) {
	st := computeStats(nil)
	if st.BestPerformingType != NoCategory || st.ROI != 0 || st.WinRate != 0 {
		t.Errorf("empty stats = %+v", st)
	}

	ten := decimal.NewFromInt(10)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lineups := []Lineup{
		// newest first; prizepicks is seen first and ties with propollama
		{ID: "a", Category: CategoryPrizePicks, Status: StatusActive, CreatedAt: at.Add(2), Metadata: &Metadata{Confidence: 80}},
		{ID: "b", Category: CategoryPropOllama, Status: StatusActive, CreatedAt: at.Add(1), Metadata: &Metadata{Confidence: 60}},
		// a push returning the stake is neither a win nor a loss
		{ID: "c", Category: CategoryPropOllama, Status: StatusCompleted, CreatedAt: at, EntryAmount: ten, ActualResult: &ten},
	}
	st = computeStats(lineups)

	if st.AverageConfidence != (80.0+60.0)/3 {
		t.Errorf("AverageConfidence = %v", st.AverageConfidence)
	}
	if st.WinRate != 0 || !st.TotalLosses.IsZero() || st.ROI != 0 {
		t.Errorf("push counted as win or loss: %+v", st)
	}
	if st.ActiveLineups != 2 {
		t.Errorf("ActiveLineups = %d", st.ActiveLineups)
	}
	if st.BestPerformingType != string(CategoryPrizePicks) {
		t.Errorf("BestPerformingType = %s, want first-seen prizepicks", st.BestPerformingType)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()

	id := saveLineup(t, src, NewLineup{
		Name:            "Round trip",
		Category:        CategoryPropOllama,
		Picks:           threePicks(),
		EntryAmount:     decimal.RequireFromString("25.00"),
		ProjectedPayout: decimal.RequireFromString("112.5"),
		Metadata:        &Metadata{Confidence: 77.5, Source: "PropOllama AI", Tags: []string{"ai-analysis"}},
	})
	src.UpdateProgress(ctx, id, []PickResult{{PickID: "p2", Result: OutcomeLost}})
	saveLineup(t, src, NewLineup{Name: "Second", Category: CategoryPrizePicks, Status: StatusActive})

	data, err := src.Export(Filter{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst := testLedger(t, storage.NewMemoryStore())
	var imported int
	dst.Subscribe(EventImported, func(n Notification) { imported = n.Count })

	n, err := dst.Import(ctx, data)
	if err != nil || n != 2 {
		t.Fatalf("Import() = %d, %v", n, err)
	}
	if imported != 2 {
		t.Errorf("lineupsImported count = %d", imported)
	}

	want, _ := json.Marshal(src.List(Filter{}))
	got, _ := json.Marshal(dst.List(Filter{}))
	if string(got) != string(want) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestImport_SkipsMalformedRecords(t *testing.T) {
	l := testLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	existing := saveLineup(t, l, NewLineup{Name: "Before", Category: CategoryPrizePicks})

	data := []byte(`[
		{"id":"ok","name":"Valid","category":"prizepicks","picks":[{"id":"x"}],"createdAt":"2024-02-01T10:00:00Z","status":"active"},
		{"id":"legacy","name":"Old export","type":"money-maker","picks":[],"savedAt":"2024-01-15T08:30:00.000Z","status":"completed","entryAmount":10,"actualResult":30},
		{"name":"No id","category":"prizepicks","picks":[],"createdAt":"2024-02-01T10:00:00Z"},
		{"id":"bad-cat","name":"Bad","category":"parlay","picks":[],"createdAt":"2024-02-01T10:00:00Z"},
		{"id":"no-picks","name":"Bad","category":"prizepicks","createdAt":"2024-02-01T10:00:00Z"},
		{"id":"no-date","name":"Bad","category":"prizepicks","picks":[]},
		{"id":"over-settled","name":"Bad","category":"prizepicks","picks":[{"id":"x"}],"createdAt":"2024-02-01T10:00:00Z","progress":{"totalPicks":1,"settledPicks":7,"wonPicks":9}},
		{"id":"wrong-total","name":"Bad","category":"prizepicks","picks":[{"id":"x"}],"createdAt":"2024-02-01T10:00:00Z","progress":{"totalPicks":3}},
		{"id":"negative","name":"Bad","category":"prizepicks","picks":[{"id":"x"}],"createdAt":"2024-02-01T10:00:00Z","progress":{"totalPicks":1,"settledPicks":0,"wonPicks":1,"lostPicks":-1}},
		"not an object",
		{"id":"` + existing + `","name":"Overwritten","category":"prizepicks","picks":[],"createdAt":"2024-02-01T10:00:00Z"}
	]`)

	n, err := l.Import(ctx, data)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Import() = %d, want 3", n)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}

	legacy, ok := l.Get("legacy")
	if !ok || legacy.Category != CategoryMoneyMaker || legacy.CreatedAt.IsZero() || !legacy.Won() {
		t.Errorf("legacy record = %+v", legacy)
	}
	if got, _ := l.Get(existing); got.Name != "Overwritten" {
		t.Errorf("existing id not overwritten: %q", got.Name)
	}

	if _, err := l.Import(ctx, []byte(`{"id":"x"}`)); !errors.Is(err, ErrInvalidImport) {
		t.Errorf("non-array import error = %v", err)
	}
}

func TestImport_NothingAdmittedWritesNothing(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	l := testLedger(t, store)

	var events int
	l.Subscribe(EventImported, func(Notification) { events++ })
	store.fail = true

	n, err := l.Import(context.Background(), []byte(`[{"name":"No id"}, 42]`))
	if err != nil || n != 0 {
		t.Errorf("Import() = %d, %v, want 0 and no write", n, err)
	}
	if events != 0 {
		t.Errorf("%d lineupsImported events for an empty import", events)
	}
}

func TestSave_ZeroPicksSurvivesReopenAndTransfer(t *testing.T) {
	store := storage.NewMemoryStore()
	l := testLedger(t, store)
	ctx := context.Background()
	id := saveLineup(t, l, NewLineup{Name: "No picks yet", Category: CategoryPrizePicks})

	reopened, err := Open(ctx, store, WithLogger(quiet))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, ok := reopened.Get(id)
	if !ok {
		t.Fatal("zero-pick lineup lost on reopen")
	}
	if got.Picks == nil || len(got.Picks) != 0 || got.Progress.TotalPicks != 0 {
		t.Errorf("reopened lineup = %+v", got)
	}

	data, err := reopened.Export(Filter{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	dst := testLedger(t, storage.NewMemoryStore())
	if n, err := dst.Import(ctx, data); err != nil || n != 1 {
		t.Fatalf("Import() = %d, %v, want 1", n, err)
	}
	if _, ok := dst.Get(id); !ok {
		t.Error("zero-pick lineup lost on import")
	}
}

func TestToolLineups(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	picks := []Pick{
		{ID: "p1", Confidence: conf(80)},
		{ID: "p2", Confidence: conf(70)},
		{ID: "p3"},
	}
	draft := Draft{
		Name:            "Tool",
		Picks:           picks,
		EntryAmount:     decimal.NewFromInt(10),
		ProjectedPayout: decimal.NewFromInt(50),
		Confidence:      91,
	}

	tests := []struct {
		category       Category
		wantSource     string
		wantTags       []string
		wantConfidence float64
	}{
		{CategoryMoneyMaker, "Money Maker Pro", []string{"ai-generated", "money-maker"}, 91},
		{CategoryPrizePicks, "PrizePicks Pro", []string{"props", "prizepicks"}, 50},
		{CategoryPropOllama, "PropOllama AI", []string{"ai-analysis", "llm-generated"}, 91},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			in, err := ToolLineup(tt.category, draft)
			if err != nil {
				t.Fatalf("ToolLineup() error = %v", err)
			}
			if in.Category != tt.category || in.Status != StatusActive {
				t.Errorf("category=%s status=%s", in.Category, in.Status)
			}
			if in.Metadata.Source != tt.wantSource || in.Metadata.Confidence != tt.wantConfidence {
				t.Errorf("metadata = %+v", in.Metadata)
			}
			if fmt.Sprint(in.Metadata.Tags) != fmt.Sprint(tt.wantTags) {
				t.Errorf("tags = %v, want %v", in.Metadata.Tags, tt.wantTags)
			}
		})
	}

	if _, err := ToolLineup("parlay", draft); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("unknown category error = %v", err)
	}
}

func TestMeanPickConfidence_FeedsStats(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	if got := MeanPickConfidence(nil); got != 0 {
		t.Errorf("MeanPickConfidence(nil) = %v, want 0", got)
	}

	l := testLedger(t, storage.NewMemoryStore())
	saveLineup(t, l, PrizePicksLineup(Draft{
		Name:  "Props",
		Picks: []Pick{{ID: "p1", Confidence: conf(60)}, {ID: "p2", Confidence: conf(90)}},
	}))
	saveLineup(t, l, MoneyMakerLineup(Draft{Name: "Money", Confidence: 55}))

	// (75 + 55) / 2
	if got := l.Stats().AverageConfidence; math.Abs(got-65) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want 65", got)
	}
}
