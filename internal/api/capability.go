package api

import (
	"errors"
	"net/http"

	"shotwatch/internal/capability"
	"shotwatch/internal/service"
)

// CapabilityHandler lets the host report a higher capability tier, for example
// after screen-capture permission is granted. The tier never goes down.
type CapabilityHandler struct {
	Pipeline Pipeline
}

type capabilityRequest struct {
	Tier *int `json:"tier"`
}

type capabilityResponse struct {
	Tier   int  `json:"tier"`
	Raised bool `json:"raised"`
}

func (h *CapabilityHandler) handle(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Pipeline == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "pipeline unavailable"}
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, capabilityResponse{Tier: h.Pipeline.Status().Tier})
		return nil
	case http.MethodPost:
	default:
		return methodNotAllowed(w, "GET, POST")
	}

	var req capabilityRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		return apiErr
	}
	if req.Tier == nil || *req.Tier < 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "tier must be a non-negative integer"}
	}

	raised, err := h.Pipeline.RaiseTier(capability.Tier(*req.Tier))
	if errors.Is(err, service.ErrTierFixed) {
		return &apiError{Status: http.StatusConflict, Message: err.Error(), Code: "tier_fixed"}
	}
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, capabilityResponse{
		Tier:   h.Pipeline.Status().Tier,
		Raised: raised,
	})
	return nil
}
