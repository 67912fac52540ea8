// logging.go - structured logging helpers for the engine package.
//
// The Scheduler accepts a *logiface.Logger[*islog.Event] (see options.go);
// these helpers standardize the field names used at the handful of call
// sites that log from inside the engine (connection accept/close, backend
// selection). Passing nil to WithLogger disables logging
// entirely; every helper here is a no-op against a nil logger.

package engine

import (
	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

type schedLogger = *logiface.Logger[*islog.Event]

func logAccept(log schedLogger, connID uuid.UUID, fd int) {
	if log == nil {
		return
	}
	log.Debug().Str("conn_id", connID.String()).Int("fd", fd).Log("accepted connection")
}

func logClose(log schedLogger, connID uuid.UUID, fd int, reason error) {
	if log == nil {
		return
	}
	b := log.Debug().Str("conn_id", connID.String()).Int("fd", fd)
	if reason != nil {
		b = b.Err(reason)
	}
	b.Log("closed connection")
}

func logBackend(log schedLogger, name string) {
	if log == nil {
		return
	}
	log.Notice().Str("backend", name).Log("engine backend selected")
}
