package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/service"
)

// QuizHandler serves questions, responses and query generation
type QuizHandler struct {
	questionSvc *service.QuestionService
	responseSvc *service.ResponseService
	querySvc    *service.QueryService
	log         *zap.Logger
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(questionSvc *service.QuestionService, responseSvc *service.ResponseService, querySvc *service.QueryService, log *zap.Logger) *QuizHandler {
	return &QuizHandler{
		questionSvc: questionSvc,
		responseSvc: responseSvc,
		querySvc:    querySvc,
		log:         log,
	}
}

// ListQuestions handles GET /api/questions
func (h *QuizHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questionSvc.List(r.Context())
	if err != nil {
		h.log.Error("list questions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

// CreateQuestion handles POST /api/questions
func (h *QuizHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req model.CreateQuestionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := h.questionSvc.Create(r.Context(), req)
	if errors.Is(err, service.ErrInvalidQuestionType) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error("create question", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": id})
}

// SubmitResponses handles POST /api/responses
func (h *QuizHandler) SubmitResponses(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitResponsesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if !authorize(r.Context(), w, req.UserID) {
		return
	}

	if err := h.responseSvc.Submit(r.Context(), req); err != nil {
		h.log.Error("submit responses", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GenerateQueries handles POST /api/queries/generate
func (h *QuizHandler) GenerateQueries(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateQueriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if !authorize(r.Context(), w, req.UserID) {
		return
	}

	queries, err := h.querySvc.Generate(r.Context(), req)
	if errors.Is(err, service.ErrNoResponses) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error("generate queries", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.GenerateQueriesResponse{Queries: queries})
}
