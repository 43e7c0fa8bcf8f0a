package handler

import (
	"net/http"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/service"
)

// VisionHandler handles image captioning endpoints
type VisionHandler struct {
	visionSvc *service.VisionService
	log       *zap.Logger
}

// NewVisionHandler creates a new vision handler
func NewVisionHandler(visionSvc *service.VisionService, log *zap.Logger) *VisionHandler {
	return &VisionHandler{visionSvc: visionSvc, log: log}
}

// Process handles POST /api/vision/process and captions synchronously
func (h *VisionHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req model.VisionProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if !authorize(r.Context(), w, req.UserID) {
		return
	}

	n, err := h.visionSvc.Process(r.Context(), req.UserID, req.ResponseDate, req.Products, 0)
	if err != nil {
		h.log.Error("vision process", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.VisionProcessResponse{Processed: n})
}

// Run handles POST /api/vision/run; work continues after the 202
func (h *VisionHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req model.VisionRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if !authorize(r.Context(), w, req.UserID) {
		return
	}

	queued, err := h.visionSvc.Run(r.Context(), req.UserID, req.ResponseDate, req.MaxConcurrency)
	if err != nil {
		h.log.Error("vision run", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusAccepted
	if queued == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, model.VisionRunResponse{OK: true, Queued: queued})
}
