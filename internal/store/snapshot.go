package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type snapshotRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

var snapshotColumns = []string{
	"id", "sequence", "timestamp", "session_id", "user_id", "turn",
	"pattern", "confidence", "stable", "trend", "oscillations", "method",
}

func (r *snapshotRepo) Save(ctx context.Context, snap *StabilitySnapshot) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	query, args := builder().Insert(StabilitySnapshotsTable.Name).
		Columns(snapshotColumns[1:]...).
		Values(seqNum, snap.Timestamp.UTC(), snap.SessionID, snap.UserID, snap.Turn,
			snap.Pattern, snap.Confidence, snap.Stable, snap.Trend, snap.Oscillations, snap.Method).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}
	snap.ID = int(id)
	snap.Sequence = seqNum
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context, sessionID string) (*StabilitySnapshot, error) {
	snaps, err := r.List(ctx, QueryOpts{SessionID: sessionID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (r *snapshotRepo) List(ctx context.Context, opts QueryOpts) ([]StabilitySnapshot, error) {
	sel := builder().Select(snapshotColumns...).From(entsql.Table(StabilitySnapshotsTable.Name))
	if p := opts.predicate(); p != nil {
		sel.Where(p)
	}
	sel.OrderBy(entsql.Desc("sequence"))
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []StabilitySnapshot
	for rows.Next() {
		var s StabilitySnapshot
		if err := rows.Scan(&s.ID, &s.Sequence, &s.Timestamp, &s.SessionID, &s.UserID, &s.Turn,
			&s.Pattern, &s.Confidence, &s.Stable, &s.Trend, &s.Oscillations, &s.Method); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	reverse(out)
	return out, nil
}

func (r *snapshotRepo) Prune(ctx context.Context, keep int) error {
	// Find the sequence of the oldest snapshot to keep.
	query, args := builder().Select("sequence").
		From(entsql.Table(StabilitySnapshotsTable.Name)).
		OrderBy(entsql.Desc("sequence")).
		Offset(keep).
		Limit(1).
		Query()
	var threshold int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&threshold)
	if err == sql.ErrNoRows {
		return nil // fewer than keep snapshots exist
	}
	if err != nil {
		return fmt.Errorf("query snapshots for prune: %w", err)
	}

	query, args = builder().Delete(StabilitySnapshotsTable.Name).
		Where(entsql.LTE("sequence", threshold)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
