package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/mca/internal/thresholds"
)

type versionRepo struct {
	db *sql.DB
}

var versionColumns = []string{"version", "timestamp", "description", "changes", "thresholds", "metrics"}

func (r *versionRepo) Save(ctx context.Context, v thresholds.AlgorithmVersion) error {
	changes, err := json.Marshal(v.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	set, err := json.Marshal(v.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	metrics, err := json.Marshal(v.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	query, args := builder().Insert(AlgorithmVersionsTable.Name).
		Columns(versionColumns...).
		Values(v.Version, v.Timestamp.UTC(), v.Description, string(changes), string(set), string(metrics)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save version %d: %w", v.Version, err)
	}
	return nil
}

func (r *versionRepo) List(ctx context.Context) ([]thresholds.AlgorithmVersion, error) {
	query, args := builder().Select(versionColumns...).
		From(entsql.Table(AlgorithmVersionsTable.Name)).
		OrderBy("version").
		Query()
	return r.query(ctx, query, args)
}

func (r *versionRepo) Latest(ctx context.Context) (*thresholds.AlgorithmVersion, error) {
	query, args := builder().Select(versionColumns...).
		From(entsql.Table(AlgorithmVersionsTable.Name)).
		OrderBy(entsql.Desc("version")).
		Limit(1).
		Query()
	vs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, nil
	}
	return &vs[0], nil
}

func (r *versionRepo) query(ctx context.Context, query string, args []any) ([]thresholds.AlgorithmVersion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var out []thresholds.AlgorithmVersion
	for rows.Next() {
		var (
			v                     thresholds.AlgorithmVersion
			changes, set, metrics string
		)
		if err := rows.Scan(&v.Version, &v.Timestamp, &v.Description, &changes, &set, &metrics); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &v.Changes); err != nil {
			return nil, fmt.Errorf("decode changes of version %d: %w", v.Version, err)
		}
		if err := json.Unmarshal([]byte(set), &v.Thresholds); err != nil {
			return nil, fmt.Errorf("decode thresholds of version %d: %w", v.Version, err)
		}
		if err := json.Unmarshal([]byte(metrics), &v.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of version %d: %w", v.Version, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
