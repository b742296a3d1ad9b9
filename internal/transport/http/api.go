package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/eligibility"
)

// UserHeader carries the caller's identity, set by an upstream gateway.
const UserHeader = "X-User-ID"

// RouterConfig holds the optional parts of the HTTP surface.
type RouterConfig struct {
	Logger      *zap.Logger
	CORSOrigins []string
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// API exposes the session service over REST.
type API struct {
	service *app.SessionService
	logger  *zap.Logger
}

// NewRouter builds the REST routes, the websocket endpoint and the operational endpoints.
func NewRouter(service *app.SessionService, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &API{service: service, logger: logger}
	ws := NewWSHandler(service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger), middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", UserHeader},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30*time.Second), requireUser)
		r.Route("/quizzes/{quizID}", func(r chi.Router) {
			r.Get("/", api.getQuiz)
			r.Get("/eligibility", api.getEligibility)
			r.Get("/best-result", api.getBestResult)
			r.Get("/attempts", api.listAttempts)
			r.Route("/session", func(r chi.Router) {
				r.Post("/", api.startSession)
				r.Get("/", api.getSession)
				r.Delete("/", api.abandonSession)
				r.Put("/answers", api.selectAnswer)
				r.Post("/navigate", api.navigate)
				r.Post("/submit", api.submit)
			})
		})
		r.Get("/attempts/{attemptID}/result", api.getResult)
	})
	return r
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := a.service.Quiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quiz)
}

func (a *API) getEligibility(w http.ResponseWriter, r *http.Request) {
	decision, err := a.service.Eligibility(r.Context(), userID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

func (a *API) getBestResult(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.BestResult(r.Context(), userID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.History(r.Context(), userID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	started, err := a.service.Start(r.Context(), userID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		a.failWithDecision(w, r, err, started.Eligibility)
		return
	}
	respondJSON(w, http.StatusCreated, started)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Snapshot(r.Context(), userID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (a *API) abandonSession(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Abandon(r.Context(), userID(r), chi.URLParam(r, "quizID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) selectAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON", Code: "bad_request"})
		return
	}
	snap, err := a.service.SelectAnswer(r.Context(), userID(r), chi.URLParam(r, "quizID"), req.QuestionID, req.OptionIndex)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (a *API) navigate(w http.ResponseWriter, r *http.Request) {
	var req navigatePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON", Code: "bad_request"})
		return
	}
	view, err := a.service.Navigate(r.Context(), userID(r), chi.URLParam(r, "quizID"), req.Index)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.Submit(r.Context(), userID(r), chi.URLParam(r, "quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.Review(r.Context(), userID(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.failWithDecision(w, r, err, eligibility.Decision{})
}

func (a *API) failWithDecision(w http.ResponseWriter, r *http.Request, err error, decision eligibility.Decision) {
	status, _ := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	respondJSON(w, status, errorBodyFor(err, decision))
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserHeader)
		if id == "" {
			respondJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader + " header", Code: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), id)))
	})
}

func withUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
