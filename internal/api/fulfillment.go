package api

import (
	"errors"
	"net/http"

	"github.com/houseflow/lighthouse/internal/fulfillment"
)

// handleFulfillment answers a smart-home assistant intent for the caller.
func (s *Server) handleFulfillment(w http.ResponseWriter, r *http.Request) {
	var req fulfillment.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.fulfillment.Handle(r.Context(), userIDFromContext(r.Context()), &req)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrInvalidRequest), errors.Is(err, fulfillment.ErrUnknownIntent):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("fulfillment failed", "request_id", req.RequestID, "error", err)
			writeInternalError(w, "fulfillment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
