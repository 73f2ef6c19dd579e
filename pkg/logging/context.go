package logging

import "context"

type testIDKeyType struct{}
type variantIDKeyType struct{}

var (
	testIDKey    = testIDKeyType{}
	variantIDKey = variantIDKeyType{}
)

// WithTestID attaches an A/B test ID to the context so that every log entry
// written under it carries the test it belongs to.
func WithTestID(ctx context.Context, testID string) context.Context {
	return context.WithValue(ctx, testIDKey, testID)
}

// GetTestID retrieves the test ID from context.
func GetTestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(testIDKey).(string)
	return id, ok
}

// WithVariantID attaches a variant ID to the context.
func WithVariantID(ctx context.Context, variantID string) context.Context {
	return context.WithValue(ctx, variantIDKey, variantID)
}

// GetVariantID retrieves the variant ID from context.
func GetVariantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(variantIDKey).(string)
	return id, ok
}
