package bus

import (
	"context"

	"github.com/liverlink/liverlink-backend/internal/realtime"
)

// Bus replicates realtime events between service instances. Each instance
// publishes its events and forwards everything it receives into its local
// hub, so observers connected to any instance see the same stream.
type Bus interface {
	Publish(ctx context.Context, evt realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(evt realtime.Event)) error
	Close() error
}
