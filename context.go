package finn

import "context"

// Direction is the direction a parameter block travels in.
//
// The wire format is the same in both directions. The direction only
// changes who owns the memory behind variable length fields.
type Direction int

const (
	// Down is the request direction, from a client towards RM.
	//
	// Deserializing a Down payload allocates fresh storage for
	// variable length fields, or aliases byte buffers directly into
	// the source payload.
	Down Direction = iota
	// Up is the reply direction, from RM back to a client.
	//
	// Serializing an Up payload releases the sender's variable length
	// buffers once they have been copied into the payload.
	// Deserializing an Up payload copies data into buffers the
	// receiver allocated ahead of time.
	Up
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return "invalid"
	}
}

type directionContextKey struct{}

func withContextDirection(ctx context.Context, dir Direction) context.Context {
	return context.WithValue(ctx, directionContextKey{}, dir)
}

// ContextDirection returns the direction of the serialization or
// deserialization in progress. It is meant for use by union variant
// codecs and other code called from within the codec.
func ContextDirection(ctx context.Context) Direction {
	if d, ok := ctx.Value(directionContextKey{}).(Direction); ok {
		return d
	}
	return Down
}
