package bridge

import (
	"context"
	"errors"

	"github.com/houseflow/lighthouse/internal/tunnel"
)

// Outcome codes shared by MQTT responses and telemetry tags.
const (
	OutcomeOK       = "ok"
	OutcomeOffline  = "deviceOffline"
	OutcomeTimeout  = "timeout"
	OutcomeClosed   = "closed"
	OutcomeBusy     = "busy"
	OutcomeCanceled = "canceled"
	OutcomeInternal = "internal"
)

// Outcome classifies the result of a tunnel command.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, tunnel.ErrDeviceNotFound):
		return OutcomeOffline
	case errors.Is(err, tunnel.ErrRequestTimeout):
		return OutcomeTimeout
	case errors.Is(err, tunnel.ErrSessionClosed), errors.Is(err, tunnel.ErrConnectionClosed):
		return OutcomeClosed
	case errors.Is(err, tunnel.ErrBusy):
		return OutcomeBusy
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeInternal
	}
}
