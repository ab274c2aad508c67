package invoker

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/aws/smithy-go"
	"github.com/oriys/meridian/internal/fault"
)

// maxSyncPayloadBytes is the provider limit for synchronous invocation
// payloads, reported back to callers on status 413.
const maxSyncPayloadBytes = 6_291_456

// classify maps a backend failure onto the shared taxonomy. Every
// failure is logged with the call's marker before being handed on.
//
// Already-normalized errors pass through unchanged. An oversized
// payload, reported either as the provider's typed API error or as a
// raw 413, becomes PayloadTooLarge; a timeout, whether surfaced
// directly or nested inside a generic client error, becomes Timeout;
// everything else is an opaque transport failure.
func classify(log *slog.Logger, connectorID string, err error) error {
	log.Error("unexpected failure while contacting the connector backend", "connector", connectorID, "error", err)

	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe
	}

	if isPayloadTooLarge(err) {
		return fault.PayloadTooLarge(err, "the compressed request must be smaller than %d bytes", maxSyncPayloadBytes)
	}

	if isTimeout(err) {
		return fault.Timeout(err, "the connector did not respond in time")
	}

	return fault.Transport(err, "unable to parse the response of the connector")
}

func isPayloadTooLarge(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "RequestEntityTooLargeException" {
		return true
	}
	var statusErr interface{ HTTPStatusCode() int }
	return errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == 413
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// resolveFailure resolves the callback with the classified failure. A
// cancelled call resolves nothing; a call without a callback logs only.
func resolveFailure(call *FunctionCall, callback Callback, h *Handle, log *slog.Logger, connectorID string, err error) {
	if !h.settle() {
		return
	}
	if callback == nil {
		log.Error("error sending event to remote function", "connector", connectorID, "error", err)
		return
	}
	callback(nil, classify(log, connectorID, err))
}
