package store

import (
	"context"
	"time"

	"github.com/abhisek/mca/internal/profile"
	"github.com/abhisek/mca/internal/thresholds"
)

// QueryOpts filters and paginates list queries. Zero values disable a filter.
type QueryOpts struct {
	Limit     int       // newest N rows (0 = unlimited)
	After     int64     // sequence > After
	UserID    string    // exact user match
	SessionID string    // exact session match
	Since     time.Time // timestamp >= Since
}

// FeedbackRepo persists ground-truth feedback.
type FeedbackRepo interface {
	// Append stores an entry. Entries with an existing ID are rejected.
	Append(ctx context.Context, e thresholds.FeedbackEntry) error

	// List returns entries in write order.
	List(ctx context.Context, opts QueryOpts) ([]thresholds.FeedbackEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

// VersionRepo persists algorithm versions.
type VersionRepo interface {
	Save(ctx context.Context, v thresholds.AlgorithmVersion) error

	// List returns every version in ascending order.
	List(ctx context.Context) ([]thresholds.AlgorithmVersion, error)

	// Latest returns the newest version, or nil if none exist.
	Latest(ctx context.Context) (*thresholds.AlgorithmVersion, error)
}

// StabilitySnapshot is one persisted per-turn stability reading.
type StabilitySnapshot struct {
	ID           int
	Sequence     int64
	Timestamp    time.Time
	SessionID    string
	UserID       string
	Turn         int
	Pattern      string
	Confidence   float64
	Stable       bool
	Trend        string
	Oscillations int
	Method       string
}

// SnapshotRepo manages stability snapshots.
type SnapshotRepo interface {
	// Save stores a snapshot and fills in its ID and Sequence.
	Save(ctx context.Context, snap *StabilitySnapshot) error

	// Latest returns the newest snapshot for a session, or nil.
	Latest(ctx context.Context, sessionID string) (*StabilitySnapshot, error)

	// List returns snapshots in write order.
	List(ctx context.Context, opts QueryOpts) ([]StabilitySnapshot, error)

	// Prune deletes all but the N most recent snapshots.
	Prune(ctx context.Context, keep int) error
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored LLM request.
type LLMRequestEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// UsageStat aggregates LLM usage for one purpose or model.
type UsageStat struct {
	Key          string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo records and queries LLM request events.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEvent, error)
	LLMUsageByPurpose(ctx context.Context) ([]UsageStat, error)
	LLMUsageByModel(ctx context.Context) ([]UsageStat, error)
}

// ProfileRepo stores the latest assessed profile per user.
type ProfileRepo interface {
	// Save inserts or replaces the user's profile.
	Save(ctx context.Context, p profile.Profile) error

	// Get returns the user's profile, or nil if none exists.
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}
