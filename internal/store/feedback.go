package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/thresholds"
)

// ErrDuplicate is returned when an entry with the same id already exists.
var ErrDuplicate = errors.New("duplicate entry")

type feedbackRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

var feedbackSelectColumns = []string{"uuid", "sequence", "timestamp", "user_id", "predicted", "actual", "accurate", "context"}

func (r *feedbackRepo) Append(ctx context.Context, e thresholds.FeedbackEntry) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query, args := builder().Insert(FeedbackTable.Name).
		Columns(feedbackSelectColumns...).
		Values(e.ID, seqNum, ts.UTC(), e.UserID, string(e.Predicted), string(e.Actual), e.Accurate, e.Context).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save feedback %s: %w", e.ID, ErrDuplicate)
		}
		return fmt.Errorf("save feedback %s: %w", e.ID, err)
	}
	return nil
}

func (r *feedbackRepo) List(ctx context.Context, opts QueryOpts) ([]thresholds.FeedbackEntry, error) {
	sel := builder().Select(feedbackSelectColumns...).From(entsql.Table(FeedbackTable.Name))
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
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []thresholds.FeedbackEntry
	for rows.Next() {
		var (
			e                 thresholds.FeedbackEntry
			seq               int64
			predicted, actual string
		)
		if err := rows.Scan(&e.ID, &seq, &e.Timestamp, &e.UserID, &predicted, &actual, &e.Accurate, &e.Context); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		e.Predicted = pattern.Pattern(predicted)
		e.Actual = pattern.Pattern(actual)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	reverse(out)
	return out, nil
}

func (r *feedbackRepo) Count(ctx context.Context) (int, error) {
	query, args := builder().Select(entsql.Count("*")).From(entsql.Table(FeedbackTable.Name)).Query()
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count feedback: %w", err)
	}
	return n, nil
}

// predicate builds the WHERE clause shared by list queries.
func (o QueryOpts) predicate() *entsql.Predicate {
	var ps []*entsql.Predicate
	if o.After > 0 {
		ps = append(ps, entsql.GT("sequence", o.After))
	}
	if o.UserID != "" {
		ps = append(ps, entsql.EQ("user_id", o.UserID))
	}
	if o.SessionID != "" {
		ps = append(ps, entsql.EQ("session_id", o.SessionID))
	}
	if !o.Since.IsZero() {
		ps = append(ps, entsql.GTE("timestamp", o.Since.UTC()))
	}
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	default:
		return entsql.And(ps...)
	}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// Primary code only when extended result codes are off.
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
