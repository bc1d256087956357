package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/chatsync/internal/event"
)

// Events returns every stored event in arrival order.
//
// Returns an empty slice (not nil) if the log is empty.
func (l *Log) Events(ctx context.Context) ([]event.ContractEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT tx_hash, log_index, event_name, decoded, args, timestamp
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []event.ContractEvent{}
	for rows.Next() {
		var (
			ev      event.ContractEvent
			decoded int
			args    string
			ts      string
		)
		if err := rows.Scan(&ev.TransactionHash, &ev.LogIndex, &ev.EventName, &decoded, &args, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Decoded = decoded != 0
		if ev.Args, err = unmarshalArgs(args); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Key(), err)
		}
		if ev.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Key(), err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Count returns the number of stored events.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// unmarshalArgs parses stored args, keeping numbers as json.Number to avoid
// float64 precision loss for values > 2^53.
func unmarshalArgs(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return args, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
