package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/eligibility"
)

type errorBody struct {
	Error       string                `json:"error"`
	Code        string                `json:"code"`
	Eligibility *eligibility.Decision `json:"eligibility,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrIneligible):
		return http.StatusForbidden, "ineligible"
	case errors.Is(err, domain.ErrSessionActive):
		return http.StatusConflict, "session_active"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusBadRequest, "invalid_question"
	case errors.Is(err, domain.ErrSubmissionFailed):
		return http.StatusServiceUnavailable, "submission_failed"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, "quiz_not_found"
	case errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, "attempt_not_found"
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity, "invalid_quiz"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorBodyFor(err error, decision eligibility.Decision) errorBody {
	status, code := statusFor(err)
	body := errorBody{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	if errors.Is(err, domain.ErrIneligible) && decision.QuizID != "" {
		body.Eligibility = &decision
	}
	return body
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
