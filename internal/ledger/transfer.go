package ledger

import (
	"context"
	"encoding/json"
	"fmt"
)

// Export serializes the matching lineups, newest first, as an indented JSON
// array
func (l *Ledger) Export(f Filter) ([]byte, error) {
	data, err := json.MarshalIndent(l.List(f), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export lineups: %w", err)
	}
	return data, nil
}

// Import admits every valid record of a JSON array, overwriting lineups with
// the same id, and returns how many were admitted. Invalid records are logged
// and skipped. Nothing is written when the data is not a JSON array.
func (l *Ledger) Import(ctx context.Context, data []byte) (int, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	admitted := make([]Lineup, 0, len(records))
	for i, rec := range records {
		lineup, err := decodeLineup(rec)
		if err != nil {
			l.logger.Printf("WARNING | Ledger: skipping import record %d: %v", i, err)
			continue
		}
		admitted = append(admitted, lineup)
	}
	if len(admitted) == 0 {
		l.logger.Printf("Ledger | imported 0 of %d lineups", len(records))
		return 0, nil
	}

	l.mu.Lock()
	next := l.copyMap()
	for _, lineup := range admitted {
		next[lineup.ID] = lineup
	}
	err := l.commit(ctx, next)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}

	l.logger.Printf("Ledger | imported %d of %d lineups", len(admitted), len(records))
	l.emit(Notification{Event: EventImported, Count: len(admitted)})
	return len(admitted), nil
}
