package instrument

import "context"

type correlationKey struct{}

// SetCorrelationID returns a copy of ctx carrying id. Log records emitted with
// that context get an "_cID" attribute.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// GetCorrelationID returns the id stored by SetCorrelationID, or "".
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
