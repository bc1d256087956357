package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/chatsync/internal/canonical"
	"github.com/roach88/chatsync/internal/event"
)

// Append stores events in order inside one transaction and returns how many
// were new. Events whose (tx_hash, log_index) is already stored are silently
// skipped; the first stored copy wins.
func (l *Log) Append(ctx context.Context, events ...event.ContractEvent) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (tx_hash, log_index, event_name, decoded, args, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash, log_index) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("append: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		args, err := marshalArgs(ev.Args)
		if err != nil {
			return 0, fmt.Errorf("append %s: %w", ev.Key(), err)
		}
		res, err := stmt.ExecContext(ctx,
			ev.TransactionHash,
			ev.LogIndex,
			ev.EventName,
			boolToInt(ev.Decoded),
			args,
			formatTime(ev.Timestamp),
		)
		if err != nil {
			return 0, fmt.Errorf("append %s: %w", ev.Key(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("append %s: rows affected: %w", ev.Key(), err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append: commit: %w", err)
	}
	if inserted > 0 {
		l.signal()
	}
	return inserted, nil
}

func marshalArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	data, err := canonical.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
