// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package adminapi

import (
	"encoding/json"
	"net/http"

	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/model"
)

// startRequest is the body of POST /v1/start. Mode is a string so an
// empty body defaults to "auto" rather than failing to decode.
type startRequest struct {
	Mode string `json:"mode"`
}

func parseMode(s string) model.FirewallMode {
	switch s {
	case "tunnel":
		return model.ModeTunnel
	case "packet_filter":
		return model.ModePacketFilter
	case "conn_mgr":
		return model.ModeConnMgr
	case "net_policy":
		return model.ModeNetPolicy
	default:
		return model.ModeAuto
	}
}

// stateResponse is the JSON view of model.FirewallState.
type stateResponse struct {
	Kind    string `json:"kind"`
	Backend string `json:"backend"`
	Message string `json:"message,omitempty"`
}

func toStateResponse(st model.FirewallState) stateResponse {
	kind := "stopped"
	switch st.Kind {
	case model.StateStarting:
		kind = "starting"
	case model.StateRunning:
		kind = "running"
	case model.StateError:
		kind = "error"
	}
	return stateResponse{Kind: kind, Backend: st.Backend.String(), Message: st.Message}
}

// planResponse is the JSON view of control.StartPlan.
type planResponse struct {
	Backend                  string `json:"backend"`
	RequiresTunnelPermission bool   `json:"requires_tunnel_permission"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, fwerrors.New(fwerrors.KindValidation, "malformed request body"))
			return
		}
	}

	mode := parseMode(req.Mode)
	if err := s.surface.Start(r.Context(), mode); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, toStateResponse(s.surface.State()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.surface.Stop(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, toStateResponse(s.surface.State()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toStateResponse(s.surface.State()))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	mode := parseMode(r.URL.Query().Get("mode"))
	plan := s.surface.ComputeStartPlan(mode)
	respondJSON(w, http.StatusOK, planResponse{
		Backend:                  plan.Backend.String(),
		RequiresTunnelPermission: plan.RequiresTunnelPermission,
	})
}

// respondJSON writes payload as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

// respondError maps a fwerrors.Kind onto the matching HTTP status, falling
// back to 500 for anything the taxonomy doesn't name.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fwerrors.GetKind(err) {
	case fwerrors.KindValidation:
		status = http.StatusBadRequest
	case fwerrors.KindNotFound:
		status = http.StatusNotFound
	case fwerrors.KindPermission:
		status = http.StatusForbidden
	case fwerrors.KindConflict:
		status = http.StatusConflict
	case fwerrors.KindUnavailable:
		status = http.StatusServiceUnavailable
	case fwerrors.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
