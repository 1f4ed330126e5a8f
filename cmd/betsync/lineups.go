package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betsync/internal/ledger"
	"github.com/betsync/internal/utils"
)

// LineupsCmd groups the ledger commands
type LineupsCmd struct {
	List   ListCmd   `cmd:"" default:"withargs" help:"List saved lineups, newest first."`
	Stats  StatsCmd  `cmd:"" help:"Show aggregate results."`
	Export ExportCmd `cmd:"" help:"Write lineups as a JSON array."`
	Import ImportCmd `cmd:"" help:"Merge lineups from a JSON array."`
	Save   SaveCmd   `cmd:"" help:"Save a new lineup."`
	Settle SettleCmd `cmd:"" help:"Record pick results."`
	Cancel CancelCmd `cmd:"" help:"Cancel a pending or active lineup."`
	Delete DeleteCmd `cmd:"" help:"Delete a lineup."`
}

// withLedger loads config, opens the ledger and runs fn with it
func withLedger(g *Globals, fn func(ctx context.Context, l *ledger.Ledger) error) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	l, release, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer release()

	return fn(ctx, l)
}

// FilterFlags narrow list and export
type FilterFlags struct {
	Category string `help:"Only this category (money-maker, prizepicks, propollama)."`
	Status   string `help:"Only this status (pending, active, completed, cancelled)."`
}

func (f FilterFlags) filter() (ledger.Filter, error) {
	out := ledger.Filter{
		Category: ledger.Category(f.Category),
		Status:   ledger.Status(f.Status),
	}
	if out.Category != "" && !out.Category.Valid() {
		return out, fmt.Errorf("%w: %q", ledger.ErrInvalidCategory, f.Category)
	}
	if out.Status != "" && !out.Status.Valid() {
		return out, fmt.Errorf("%w: %q", ledger.ErrInvalidStatus, f.Status)
	}
	return out, nil
}

// ListCmd prints lineups as a table
type ListCmd struct {
	FilterFlags `embed:""`
}

// Run executes the list command
func (c *ListCmd) Run(g *Globals) error {
	f, err := c.filter()
	if err != nil {
		return err
	}
	return withLedger(g, func(_ context.Context, l *ledger.Ledger) error {
		lineups := l.List(f)
		if len(lineups) == 0 {
			fmt.Println("No lineups saved")
			return nil
		}
		fmt.Print(lineupTable(lineups))
		return nil
	})
}

func lineupTable(lineups []ledger.Lineup) string {
	headers := []string{"ID", "NAME", "TYPE", "STATUS", "PICKS", "ENTRY", "PAYOUT", "RESULT", "CREATED"}
	rows := make([][]string, 0, len(lineups))
	for _, lu := range lineups {
		settled := 0
		if lu.Progress != nil {
			settled = lu.Progress.SettledPicks
		}
		result := "-"
		if lu.ActualResult != nil {
			result = utils.FormatMoney(*lu.ActualResult)
		}
		rows = append(rows, []string{
			lu.ID,
			utils.Truncate(lu.Name, 28),
			string(lu.Category),
			string(lu.Status),
			utils.FormatProgress(settled, len(lu.Picks)),
			utils.FormatMoney(lu.EntryAmount),
			utils.FormatMoney(lu.ProjectedPayout),
			result,
			utils.FormatDate(lu.CreatedAt),
		})
	}
	return utils.FormatTable(headers, rows)
}

// StatsCmd prints the ledger aggregates
type StatsCmd struct {
	JSON bool `help:"Print as JSON."`
}

// Run executes the stats command
func (c *StatsCmd) Run(g *Globals) error {
	return withLedger(g, func(_ context.Context, l *ledger.Ledger) error {
		st := l.Stats()
		if c.JSON {
			return printJSON(st)
		}
		fmt.Print(utils.FormatTable([]string{"METRIC", "VALUE"}, [][]string{
			{"Total lineups", fmt.Sprint(st.TotalLineups)},
			{"Active", fmt.Sprint(st.ActiveLineups)},
			{"Completed", fmt.Sprint(st.CompletedLineups)},
			{"Risked", utils.FormatMoney(st.TotalRisked)},
			{"Winnings", utils.FormatMoney(st.TotalWinnings)},
			{"Losses", utils.FormatMoney(st.TotalLosses)},
			{"Win rate", utils.FormatPercent(st.WinRate)},
			{"ROI", utils.FormatPercent(st.ROI)},
			{"Avg confidence", fmt.Sprintf("%.1f", st.AverageConfidence)},
			{"Best type", st.BestPerformingType},
		}))
		return nil
	})
}

// ExportCmd writes the filtered lineups as JSON
type ExportCmd struct {
	FilterFlags `embed:""`

	Output string `help:"Output file (stdout when empty)." short:"o" type:"path"`
}

// Run executes the export command
func (c *ExportCmd) Run(g *Globals) error {
	f, err := c.filter()
	if err != nil {
		return err
	}
	return withLedger(g, func(_ context.Context, l *ledger.Ledger) error {
		data, err := l.Export(f)
		if err != nil {
			return err
		}
		if c.Output == "" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(c.Output, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Output, err)
		}
		fmt.Printf("Exported to %s\n", c.Output)
		return nil
	})
}

// ImportCmd merges lineups from a file written by export
type ImportCmd struct {
	File string `arg:"" help:"JSON file to import." type:"existingfile"`
}

// Run executes the import command
func (c *ImportCmd) Run(g *Globals) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	return withLedger(g, func(ctx context.Context, l *ledger.Ledger) error {
		n, err := l.Import(ctx, data)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d lineups\n", n)
		return nil
	})
}

// SaveCmd saves a lineup the way the named tool does: active, with the
// tool's source and tags. Picks get ids p1, p2, ...
type SaveCmd struct {
	Name       string   `arg:"" help:"Lineup name."`
	Category   string   `help:"Tool the lineup came from (money-maker, prizepicks, propollama)." short:"t" required:""`
	Entry      string   `help:"Entry amount." required:""`
	Payout     string   `help:"Projected payout." required:""`
	Pick       []string `help:"Pick as description or description@confidence (repeatable)." sep:"none"`
	Pending    bool     `help:"Save as pending instead of active."`
	Confidence float64  `help:"Lineup confidence, 0-100. PrizePicks averages the pick confidences instead."`
	Tag        []string `help:"Extra tag (repeatable)."`
}

// Run executes the save command
func (c *SaveCmd) Run(g *Globals) error {
	entry, err := decimal.NewFromString(c.Entry)
	if err != nil {
		return fmt.Errorf("invalid entry amount %q: %w", c.Entry, err)
	}
	payout, err := decimal.NewFromString(c.Payout)
	if err != nil {
		return fmt.Errorf("invalid payout %q: %w", c.Payout, err)
	}

	draft := ledger.Draft{
		Name:            c.Name,
		Picks:           make([]ledger.Pick, 0, len(c.Pick)),
		EntryAmount:     entry,
		ProjectedPayout: payout,
		Confidence:      c.Confidence,
	}
	for i, arg := range c.Pick {
		pick, err := parsePick(i, arg)
		if err != nil {
			return err
		}
		draft.Picks = append(draft.Picks, pick)
	}

	in, err := ledger.ToolLineup(ledger.Category(c.Category), draft)
	if err != nil {
		return err
	}
	if c.Pending {
		in.Status = ledger.StatusPending
	}
	in.Metadata.Tags = append(in.Metadata.Tags, c.Tag...)

	return withLedger(g, func(ctx context.Context, l *ledger.Ledger) error {
		id, err := l.Save(ctx, in)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	})
}

// parsePick reads "description" or "description@confidence" as pick i
func parsePick(i int, arg string) (ledger.Pick, error) {
	pick := ledger.Pick{ID: fmt.Sprintf("p%d", i+1), Description: arg}

	at := strings.LastIndex(arg, "@")
	if at < 0 {
		return pick, nil
	}
	conf, err := strconv.ParseFloat(strings.TrimSpace(arg[at+1:]), 64)
	if err != nil || conf < 0 || conf > 100 {
		return pick, fmt.Errorf("invalid pick %q, want description@confidence with confidence 0-100", arg)
	}
	pick.Description = strings.TrimSpace(arg[:at])
	pick.Confidence = &conf
	return pick, nil
}

// SettleCmd records pick results and, optionally, the amount returned
type SettleCmd struct {
	ID       string   `arg:"" help:"Lineup id."`
	Results  []string `arg:"" help:"Results as pick=outcome, outcome being won, lost or push."`
	Returned string   `help:"Amount returned, stored as the actual result."`
}

// Run executes the settle command
func (c *SettleCmd) Run(g *Globals) error {
	results, err := parseResults(c.Results)
	if err != nil {
		return err
	}
	var returned *decimal.Decimal
	if c.Returned != "" {
		d, err := decimal.NewFromString(c.Returned)
		if err != nil {
			return fmt.Errorf("invalid returned amount %q: %w", c.Returned, err)
		}
		returned = &d
	}

	return withLedger(g, func(ctx context.Context, l *ledger.Ledger) error {
		ok, err := l.UpdateProgress(ctx, c.ID, results)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lineup %s not found", c.ID)
		}
		if returned != nil {
			if _, err := l.Update(ctx, c.ID, ledger.Patch{ActualResult: returned}); err != nil {
				return err
			}
		}

		lu, _ := l.Get(c.ID)
		fmt.Print(lineupTable([]ledger.Lineup{lu}))
		return nil
	})
}

func parseResults(args []string) ([]ledger.PickResult, error) {
	results := make([]ledger.PickResult, 0, len(args))
	for _, arg := range args {
		pick, outcome, ok := strings.Cut(arg, "=")
		if !ok || pick == "" {
			return nil, fmt.Errorf("invalid result %q, want pick=outcome", arg)
		}
		results = append(results, ledger.PickResult{PickID: pick, Result: ledger.Outcome(outcome)})
	}
	return results, nil
}

// CancelCmd cancels a lineup
type CancelCmd struct {
	ID string `arg:"" help:"Lineup id."`
}

// Run executes the cancel command
func (c *CancelCmd) Run(g *Globals) error {
	return withLedger(g, func(ctx context.Context, l *ledger.Ledger) error {
		status := ledger.StatusCancelled
		ok, err := l.Update(ctx, c.ID, ledger.Patch{Status: &status})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lineup %s not found", c.ID)
		}
		fmt.Printf("Cancelled %s\n", c.ID)
		return nil
	})
}

// DeleteCmd deletes a lineup
type DeleteCmd struct {
	ID string `arg:"" help:"Lineup id."`
}

// Run executes the delete command
func (c *DeleteCmd) Run(g *Globals) error {
	return withLedger(g, func(ctx context.Context, l *ledger.Ledger) error {
		ok, err := l.Delete(ctx, c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lineup %s not found", c.ID)
		}
		fmt.Printf("Deleted %s\n", c.ID)
		return nil
	})
}
