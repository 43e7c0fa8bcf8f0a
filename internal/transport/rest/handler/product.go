package handler

import (
	"net/http"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/service"
)

// ProductHandler persists discovered products
type ProductHandler struct {
	productSvc *service.ProductService
	log        *zap.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(productSvc *service.ProductService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{productSvc: productSvc, log: log}
}

// StoreSearch handles POST /api/products/store; only search results are accepted
func (h *ProductHandler) StoreSearch(w http.ResponseWriter, r *http.Request) {
	var req model.StoreProductsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Source != model.SourceSearch {
		writeError(w, http.StatusBadRequest, service.ErrInvalidSource.Error())
		return
	}
	h.store(w, r, req)
}

// StoreRecommended handles POST /api/products/recommended/store
func (h *ProductHandler) StoreRecommended(w http.ResponseWriter, r *http.Request) {
	var req model.StoreProductsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	req.Source = model.SourceRecommended
	h.store(w, r, req)
}

func (h *ProductHandler) store(w http.ResponseWriter, r *http.Request, req model.StoreProductsRequest) {
	if !authorize(r.Context(), w, req.UserID) {
		return
	}
	stored, err := h.productSvc.Store(r.Context(), req.UserID, req.ResponseDate, req.Source, req.Results)
	if err != nil {
		h.log.Error("store products", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.StoreProductsResponse{OK: true, Stored: stored})
}
