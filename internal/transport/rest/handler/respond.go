package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"quizpicks/internal/model"
	"quizpicks/internal/transport/rest/middleware"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// errBadRequest marks decoding and validation failures
var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into dst and runs its validate tags
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// authorize writes 403 and returns false when the caller may not act for userID
func authorize(ctx context.Context, w http.ResponseWriter, userID string) bool {
	if err := middleware.CheckUser(ctx, userID); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return false
	}
	return true
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{OK: false, Error: message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadRequest.Error()+": "))
}
