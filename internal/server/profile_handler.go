package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/export"
	"github.com/limiquantix/addrpool/internal/network/pool"
	"github.com/limiquantix/addrpool/internal/services/network"
	"github.com/limiquantix/addrpool/internal/services/workload"
)

// ProfileHandler handles HTTP requests for network profiles and subnet math.
type ProfileHandler struct {
	profiles  *network.ProfileService
	workloads *workload.Service
	logger    *zap.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles *network.ProfileService, workloads *workload.Service, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		workloads: workloads,
		logger:    logger.Named("profile-handler"),
	}
}

// RegisterRoutes registers profile API routes.
func (h *ProfileHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/subnet-masks", h.handleMasks)
	mux.HandleFunc("/api/subnets/compute", h.handleCompute)
	mux.HandleFunc("/api/subnets/preview", h.handlePreview)
	mux.HandleFunc("/api/ip-pools", h.handleProfiles)
	mux.HandleFunc("/api/ip-pools/", h.handleProfileByID)
}

// subnetRequest is the body of the compute and preview endpoints.
type subnetRequest struct {
	BaseAddress string `json:"base_address"`
	Mask        string `json:"mask"`
	Gateway     string `json:"gateway,omitempty"`
}

// reserveRequest is the body of POST /api/ip-pools/{id}/reserve.
type reserveRequest struct {
	Address    string `json:"address,omitempty"`
	WorkloadID string `json:"workload_id"`
	NICID      string `json:"nic_id"`
}

// releaseRequest is the body of POST /api/ip-pools/{id}/release.
type releaseRequest struct {
	Address string `json:"address"`
}

// handleMasks handles GET /api/subnet-masks
func (h *ProfileHandler) handleMasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{"masks": pool.MaskOptions()})
}

// handleCompute handles POST /api/subnets/compute
func (h *ProfileHandler) handleCompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req subnetRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}

	facts, err := h.profiles.ComputeSubnet(req.BaseAddress, req.Mask)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, facts)
}

// handlePreview handles POST /api/subnets/preview
func (h *ProfileHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req subnetRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}

	preview, err := h.profiles.PreviewPool(req.BaseAddress, req.Mask, req.Gateway)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, preview)
}

// handleProfiles handles GET /api/ip-pools and POST /api/ip-pools
func (h *ProfileHandler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listProfiles(w, r)
	case http.MethodPost:
		h.createProfile(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}

// handleProfileByID handles requests to /api/ip-pools/{id}
func (h *ProfileHandler) handleProfileByID(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/ip-pools/{id} or /api/ip-pools/{id}/{action}
	path := strings.TrimPrefix(r.URL.Path, "/api/ip-pools/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		writeBadRequest(h.logger, w, "Profile ID required")
		return
	}
	id := parts[0]

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "stats" && r.Method == http.MethodGet:
			h.getStatistics(w, r, id)
		case parts[1] == "export" && r.Method == http.MethodGet:
			h.exportProfile(w, r, id)
		case parts[1] == "reserve" && r.Method == http.MethodPost:
			h.reserveAddress(w, r, id)
		case parts[1] == "release" && r.Method == http.MethodPost:
			h.releaseAddress(w, r, id)
		case parts[1] == "stats" || parts[1] == "export" || parts[1] == "reserve" || parts[1] == "release":
			methodNotAllowed(w)
		default:
			http.NotFound(w, r)
		}
		return
	}
	if len(parts) > 2 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getProfile(w, r, id)
	case http.MethodPut:
		h.updateProfile(w, r, id)
	case http.MethodDelete:
		h.deleteProfile(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

// listProfiles handles GET /api/ip-pools
func (h *ProfileHandler) listProfiles(w http.ResponseWriter, r *http.Request) {
	filter := network.ProfileFilter{LabelContains: r.URL.Query().Get("search")}

	profiles, err := h.profiles.ListProfiles(r.Context(), filter)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"total":    len(profiles),
	})
}

// createProfile handles POST /api/ip-pools
func (h *ProfileHandler) createProfile(w http.ResponseWriter, r *http.Request) {
	var spec network.ProfileSpec
	if err := decodeBody(r, &spec); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}

	result, err := h.profiles.CreateProfile(r.Context(), spec)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, result)
}

// getProfile handles GET /api/ip-pools/{id}
func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.profiles.GetProfile(r.Context(), id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, profile)
}

// updateProfile handles PUT /api/ip-pools/{id}
func (h *ProfileHandler) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var spec network.ProfileSpec
	if err := decodeBody(r, &spec); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}

	result, err := h.profiles.UpdateProfile(r.Context(), id, spec)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	if len(result.Warnings) > 0 {
		h.logger.Warn("Profile update orphaned reservations",
			zap.String("profile_id", id),
			zap.Int("orphaned", len(result.Warnings)),
		)
	}
	writeJSON(h.logger, w, http.StatusOK, result)
}

// deleteProfile handles DELETE /api/ip-pools/{id}
func (h *ProfileHandler) deleteProfile(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.profiles.DeleteProfile(r.Context(), id); err != nil {
		writeError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getStatistics handles GET /api/ip-pools/{id}/stats
func (h *ProfileHandler) getStatistics(w http.ResponseWriter, r *http.Request, id string) {
	stats, err := h.profiles.GetStatistics(r.Context(), id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, stats)
}

// exportProfile handles GET /api/ip-pools/{id}/export?format=csv|xlsx|yaml|json
func (h *ProfileHandler) exportProfile(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	profile, err := h.profiles.GetProfile(ctx, id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	holders, err := h.workloads.ListWorkloads(ctx, workload.Filter{ProfileLabel: profile.Label})
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	bundle := export.BuildBundle(profile, holders)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+export.FileName(bundle, format))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, bundle); err != nil {
		h.logger.Error("Failed to write export", zap.String("profile_id", id), zap.Error(err))
	}
}

// reserveAddress handles POST /api/ip-pools/{id}/reserve
func (h *ProfileHandler) reserveAddress(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	var req reserveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}
	if req.WorkloadID == "" || req.NICID == "" {
		writeBadRequest(h.logger, w, "workload_id and nic_id are required")
		return
	}

	profile, err := h.profiles.GetProfile(ctx, id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	wl, err := h.workloads.AssignNIC(ctx, req.WorkloadID, req.NICID, profile.Label, req.Address)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	address := ""
	for _, nic := range wl.NICs {
		if nic.NICID == req.NICID {
			address = nic.Address
		}
	}

	profile, err = h.profiles.GetProfile(ctx, id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"address":  address,
		"profile":  profile,
		"workload": wl,
	})
}

// releaseAddress handles POST /api/ip-pools/{id}/release
func (h *ProfileHandler) releaseAddress(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	var req releaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}
	if req.Address == "" {
		writeBadRequest(h.logger, w, "address is required")
		return
	}

	profile, err := h.profiles.GetProfile(ctx, id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	if err := h.workloads.ReleaseAddress(ctx, profile.Label, req.Address); err != nil {
		writeError(h.logger, w, err)
		return
	}

	profile, err = h.profiles.GetProfile(ctx, id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, profile)
}
