package services

import (
	"context"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/realtime"
	"github.com/liverlink/liverlink-backend/internal/realtime/bus"
)

// Emitter decouples event producers from the fanout mechanism. Single
// instance deployments emit straight into the local hub; multi-instance
// deployments emit through the redis bus and let each instance's forwarder
// feed its own hub.
type Emitter interface {
	Emit(ctx context.Context, evt realtime.Event)
}

type HubEmitter struct{ Hub *realtime.Hub }

func (e *HubEmitter) Emit(ctx context.Context, evt realtime.Event) {
	e.Hub.Broadcast(evt)
}

type BusEmitter struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (e *BusEmitter) Emit(ctx context.Context, evt realtime.Event) {
	if err := e.Bus.Publish(ctx, evt); err != nil && e.Log != nil {
		e.Log.Warn("event bus publish failed", "kind", evt.Kind, "run_id", evt.RunID, "error", err)
	}
}
