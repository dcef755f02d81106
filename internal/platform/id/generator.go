package id

import (
	"context"

	"github.com/rs/xid"
)

const maxRequestIDLength = 128

// Generator creates opaque IDs used to correlate a request across the local
// API and the backend.
type Generator interface {
	NewID() (string, error)
}

// RandomGenerator issues sortable, 20 character xid strings.
type RandomGenerator struct{}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

func (g *RandomGenerator) NewID() (string, error) {
	return xid.New().String(), nil
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// ValidRequestID accepts caller supplied IDs made of printable ASCII without
// spaces, up to 128 bytes.
func ValidRequestID(value string) bool {
	if value == "" || len(value) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] <= ' ' || value[i] > '~' {
			return false
		}
	}
	return true
}
