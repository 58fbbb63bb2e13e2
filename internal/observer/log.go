package observer

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/logging"
)

type logObserver struct {
	logger *zap.Logger
}

// Log returns an observer that writes every hook to logger at the trace
// level. It costs one level check per hook when trace logging is off.
func Log(logger *zap.Logger) ErrorObserver {
	return logObserver{logger: logger}
}

func (l logObserver) OnEnter(id uuid.UUID, name string) {
	if ce := l.logger.Check(logging.TraceLevel, "wasm call enter"); ce != nil {
		ce.Write(zap.String("function", name), zap.Stringer("correlation_id", id))
	}
}

func (l logObserver) OnError(id uuid.UUID, name string, err error) {
	if ce := l.logger.Check(logging.TraceLevel, "wasm call error"); ce != nil {
		ce.Write(zap.String("function", name), zap.Stringer("correlation_id", id), zap.Error(err))
	}
}

func (l logObserver) OnExit(id uuid.UUID, name string, duration time.Duration) {
	if ce := l.logger.Check(logging.TraceLevel, "wasm call exit"); ce != nil {
		ce.Write(zap.String("function", name), zap.Stringer("correlation_id", id), zap.Duration("duration", duration))
	}
}
