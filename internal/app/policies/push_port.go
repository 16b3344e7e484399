package policies

import (
	"context"

	"rentsync/internal/domain/requests"
)

// PushHandler receives normalized lifecycle events.
type PushHandler func(ctx context.Context, ev requests.RealtimeEvent)

// PushChannel is the already-connected realtime connection owned by the
// transport. Register returns the matching deregistration; calling it more
// than once is harmless. Deregistering never closes the connection.
type PushChannel interface {
	Register(kind requests.EventKind, handler PushHandler) (deregister func())
}
