package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// FeedbackColumns holds the columns for the "feedback" table.
	FeedbackColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "uuid", Type: field.TypeString, Unique: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeString},
		{Name: "predicted", Type: field.TypeString},
		{Name: "actual", Type: field.TypeString},
		{Name: "accurate", Type: field.TypeBool},
		{Name: "context", Type: field.TypeString, Default: ""},
	}
	// FeedbackTable holds the schema information for the "feedback" table.
	FeedbackTable = &schema.Table{
		Name:       "feedback",
		Columns:    FeedbackColumns,
		PrimaryKey: []*schema.Column{FeedbackColumns[0]},
		Indexes: []*schema.Index{
			{Name: "feedback_user_id", Columns: []*schema.Column{FeedbackColumns[4]}},
		},
	}

	// AlgorithmVersionsColumns holds the columns for the "algorithm_versions" table.
	AlgorithmVersionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "version", Type: field.TypeInt, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "description", Type: field.TypeString, Default: ""},
		{Name: "changes", Type: field.TypeString},
		{Name: "thresholds", Type: field.TypeString},
		{Name: "metrics", Type: field.TypeString},
	}
	// AlgorithmVersionsTable holds the schema information for the "algorithm_versions" table.
	AlgorithmVersionsTable = &schema.Table{
		Name:       "algorithm_versions",
		Columns:    AlgorithmVersionsColumns,
		PrimaryKey: []*schema.Column{AlgorithmVersionsColumns[0]},
	}

	// StabilitySnapshotsColumns holds the columns for the "stability_snapshots" table.
	StabilitySnapshotsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "session_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString, Default: ""},
		{Name: "turn", Type: field.TypeInt},
		{Name: "pattern", Type: field.TypeString},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "stable", Type: field.TypeBool},
		{Name: "trend", Type: field.TypeString},
		{Name: "oscillations", Type: field.TypeInt},
		{Name: "method", Type: field.TypeString},
	}
	// StabilitySnapshotsTable holds the schema information for the "stability_snapshots" table.
	StabilitySnapshotsTable = &schema.Table{
		Name:       "stability_snapshots",
		Columns:    StabilitySnapshotsColumns,
		PrimaryKey: []*schema.Column{StabilitySnapshotsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "stabilitysnapshot_session_id_turn", Columns: []*schema.Column{StabilitySnapshotsColumns[3], StabilitySnapshotsColumns[5]}},
		},
	}

	// LlmRequestEventsColumns holds the columns for the "llm_request_events" table.
	LlmRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Default: ""},
		{Name: "response_body", Type: field.TypeString, Default: ""},
	}
	// LlmRequestEventsTable holds the schema information for the "llm_request_events" table.
	LlmRequestEventsTable = &schema.Table{
		Name:       "llm_request_events",
		Columns:    LlmRequestEventsColumns,
		PrimaryKey: []*schema.Column{LlmRequestEventsColumns[0]},
	}

	// ProfilesColumns holds the columns for the "profiles" table.
	ProfilesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "user_id", Type: field.TypeString, Unique: true},
		{Name: "pattern", Type: field.TypeString},
		{Name: "scores", Type: field.TypeString},
		{Name: "indicators", Type: field.TypeString},
		{Name: "assessed_at", Type: field.TypeTime},
	}
	// ProfilesTable holds the schema information for the "profiles" table.
	ProfilesTable = &schema.Table{
		Name:       "profiles",
		Columns:    ProfilesColumns,
		PrimaryKey: []*schema.Column{ProfilesColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		FeedbackTable,
		AlgorithmVersionsTable,
		StabilitySnapshotsTable,
		LlmRequestEventsTable,
		ProfilesTable,
	}
)
