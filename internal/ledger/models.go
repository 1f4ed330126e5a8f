package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the tool a lineup was built with. Fixed at creation.
type Category string

const (
	CategoryMoneyMaker Category = "money-maker"
	CategoryPrizePicks Category = "prizepicks"
	CategoryPropOllama Category = "propollama"
)

// Categories lists every known category
var Categories = []Category{CategoryMoneyMaker, CategoryPrizePicks, CategoryPropOllama}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a lineup
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Choice is the side taken on a prop line
type Choice string

const (
	ChoiceOver  Choice = "over"
	ChoiceUnder Choice = "under"
)

// Outcome is the settled result of one pick
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
	OutcomePush Outcome = "push"
)

// Pick is a single selection inside a lineup. Picks never change after save.
type Pick struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Player      string   `json:"player,omitempty"`
	Stat        string   `json:"stat,omitempty"`
	Line        *float64 `json:"line,omitempty"`
	Choice      Choice   `json:"choice,omitempty"`
	Odds        *float64 `json:"odds,omitempty"`
	Projection  *float64 `json:"projection,omitempty"`

	// Confidence is the model confidence for this pick, 0-100
	Confidence *float64 `json:"confidence,omitempty"`
}

// Progress counts settled picks.
// SettledPicks == WonPicks+LostPicks+PushPicks <= TotalPicks.
type Progress struct {
	TotalPicks   int `json:"totalPicks"`
	SettledPicks int `json:"settledPicks"`
	WonPicks     int `json:"wonPicks"`
	LostPicks    int `json:"lostPicks"`
	PushPicks    int `json:"pushPicks"`
}

// Metadata describes where a lineup came from
type Metadata struct {
	// Confidence is the lineup-level confidence, 0-100
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
	Notes      string   `json:"notes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Lineup is a named, priced bundle of picks tracked through settlement
type Lineup struct {
	// ID is assigned on save and never changes
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Picks    []Pick   `json:"picks"`

	// EntryAmount is the stake; ProjectedPayout what a full win returns
	EntryAmount     decimal.Decimal `json:"entryAmount"`
	ProjectedPayout decimal.Decimal `json:"projectedPayout"`

	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`

	// ActualResult is the amount returned once settled
	ActualResult *decimal.Decimal `json:"actualResult,omitempty"`
	Progress     *Progress        `json:"progress,omitempty"`
	Metadata     *Metadata        `json:"metadata,omitempty"`
}

// Won reports whether the lineup returned more than it risked
func (l *Lineup) Won() bool {
	return l.ActualResult != nil && l.ActualResult.GreaterThan(l.EntryAmount)
}

// Result returns ActualResult, or zero when unset
func (l *Lineup) Result() decimal.Decimal {
	if l.ActualResult == nil {
		return decimal.Zero
	}
	return *l.ActualResult
}

// clone returns a copy that shares no mutable memory with l
func (l Lineup) clone() Lineup {
	c := l
	c.Picks = slices.Clone(l.Picks)
	if l.ActualResult != nil {
		r := *l.ActualResult
		c.ActualResult = &r
	}
	if l.Progress != nil {
		p := *l.Progress
		c.Progress = &p
	}
	if l.Metadata != nil {
		m := *l.Metadata
		m.Tags = slices.Clone(l.Metadata.Tags)
		c.Metadata = &m
	}
	return c
}

// Validate checks the fields every stored lineup must carry
func (l *Lineup) Validate() error {
	if l.ID == "" {
		return ErrMissingID
	}
	if l.Name == "" {
		return ErrMissingName
	}
	if !l.Category.Valid() {
		return ErrInvalidCategory
	}
	if l.Picks == nil {
		return ErrMissingPicks
	}
	if l.CreatedAt.IsZero() {
		return ErrMissingCreatedAt
	}
	if !l.Status.Valid() {
		return ErrInvalidStatus
	}
	if l.Progress != nil {
		if err := l.Progress.validate(len(l.Picks)); err != nil {
			return err
		}
	}
	return validatePicks(l.Picks)
}

// validate checks the counters against the lineup's pick count
func (p *Progress) validate(picks int) error {
	if p.SettledPicks < 0 || p.WonPicks < 0 || p.LostPicks < 0 || p.PushPicks < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidProgress)
	}
	if p.TotalPicks != picks {
		return fmt.Errorf("%w: %d total for %d picks", ErrInvalidProgress, p.TotalPicks, picks)
	}
	if p.SettledPicks != p.WonPicks+p.LostPicks+p.PushPicks {
		return fmt.Errorf("%w: %d settled but %d won, %d lost, %d push",
			ErrInvalidProgress, p.SettledPicks, p.WonPicks, p.LostPicks, p.PushPicks)
	}
	if p.SettledPicks > p.TotalPicks {
		return fmt.Errorf("%w: %d settled of %d", ErrInvalidProgress, p.SettledPicks, p.TotalPicks)
	}
	return nil
}

// NewLineup is the caller-supplied part of a lineup
type NewLineup struct {
	Name            string
	Category        Category
	Picks           []Pick
	EntryAmount     decimal.Decimal
	ProjectedPayout decimal.Decimal

	// Status defaults to pending; only pending and active are accepted
	Status   Status
	Metadata *Metadata
}

// Validate checks a lineup before it is saved
func (n *NewLineup) Validate() error {
	if n.Name == "" {
		return ErrMissingName
	}
	if !n.Category.Valid() {
		return ErrInvalidCategory
	}
	if n.Status != "" && n.Status != StatusPending && n.Status != StatusActive {
		return ErrInvalidStatus
	}
	if n.EntryAmount.IsNegative() || n.ProjectedPayout.IsNegative() {
		return ErrNegativeAmount
	}
	return validatePicks(n.Picks)
}

func validatePicks(picks []Pick) error {
	seen := make(map[string]bool, len(picks))
	for _, p := range picks {
		if p.ID == "" {
			return ErrMissingPickID
		}
		if seen[p.ID] {
			return ErrDuplicatePickID
		}
		seen[p.ID] = true
		if p.Choice != "" && p.Choice != ChoiceOver && p.Choice != ChoiceUnder {
			return ErrInvalidChoice
		}
	}
	return nil
}

// Patch holds the user-editable fields. Nil fields are left unchanged.
// Category, picks and createdAt cannot be patched.
type Patch struct {
	Name            *string
	EntryAmount     *decimal.Decimal
	ProjectedPayout *decimal.Decimal
	Status          *Status
	ActualResult    *decimal.Decimal
	Metadata        *Metadata
}

// PickResult settles one pick
type PickResult struct {
	PickID string  `json:"pickId"`
	Result Outcome `json:"result"`
}

// Filter narrows List and Export. Zero fields match everything.
type Filter struct {
	Category Category
	Status   Status
}

func (f Filter) match(l *Lineup) bool {
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	return true
}
