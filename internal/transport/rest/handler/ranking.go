package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/service"
)

// RankingHandler handles ranking endpoints
type RankingHandler struct {
	rankingSvc *service.RankingService
	log        *zap.Logger
}

// NewRankingHandler creates a new ranking handler
func NewRankingHandler(rankingSvc *service.RankingService, log *zap.Logger) *RankingHandler {
	return &RankingHandler{rankingSvc: rankingSvc, log: log}
}

// Build handles POST /api/ranking/build
func (h *RankingHandler) Build(w http.ResponseWriter, r *http.Request) {
	var req model.BuildRankingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if !authorize(r.Context(), w, req.UserID) {
		return
	}

	top, err := h.rankingSvc.Build(r.Context(), req)
	if err != nil {
		h.log.Error("build ranking", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.BuildRankingResponse{Top: top})
}

// Get handles GET /api/ranking?user_id&response_date&limit&offset
func (h *RankingHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	date := q.Get("response_date")
	if userID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "user_id and response_date are required")
		return
	}
	if !authorize(r.Context(), w, userID) {
		return
	}

	limit := service.DefaultPageLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}

	page, err := h.rankingSvc.Get(r.Context(), userID, date, limit, offset)
	if err != nil {
		h.log.Error("get ranking", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Replenish handles POST /api/ranking/replenish
func (h *RankingHandler) Replenish(w http.ResponseWriter, r *http.Request) {
	var req model.ReplenishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if !authorize(r.Context(), w, req.UserID) {
		return
	}

	added, version, err := h.rankingSvc.Replenish(r.Context(), req)
	if err != nil {
		h.log.Error("replenish ranking", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.ReplenishResponse{Added: added, ContextVersion: version})
}
