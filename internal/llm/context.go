package llm

import "context"

type purposeKey struct{}

// PurposeClassification tags pattern-classification calls in the request log.
const PurposeClassification = "pattern-classification"

// WithPurpose labels calls made with ctx for the request log.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
