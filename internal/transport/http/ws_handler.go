package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/eligibility"
)

const (
	// inbound messages per second allowed on one connection, with a small burst
	wsMessageRate  = 10
	wsMessageBurst = 20
	wsWriteTimeout = 10 * time.Second
)

type WSHandler struct {
	service      *app.SessionService
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

func NewWSHandler(service *app.SessionService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service:      service,
		logger:       logger,
		writeTimeout: wsWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request, starts a session for (userId, quizId) and
// drives it from the socket until the session completes or the client leaves.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// the session outlives the request context between messages
	ctx := context.WithoutCancel(r.Context())
	log := h.logger.With(zap.String("user_id", userID), zap.String("quiz_id", quizID))

	started, err := h.service.Start(ctx, userID, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorBody]{Type: "error", Payload: errorBodyFor(err, started.Eligibility)})
		return
	}

	updates, cancel, err := h.service.Subscribe(ctx, userID, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorBody]{Type: "error", Payload: errorBodyFor(err, started.Eligibility)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	finished := make(chan struct{})

	send <- outboundMessage[any]{Type: "started", Payload: started}

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				// unblock the reader; nothing more can reach the client
				_ = conn.Close()
				return
			}
		}
	}()

	// enqueue reports false once the writer has stopped.
	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				msg := outboundMessage[any]{Type: "state", Payload: snap}
				if snap.State == domain.StateCompleted && snap.Result != nil {
					msg = outboundMessage[any]{Type: "result", Payload: snap.Result}
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
				if snap.State.Terminal() {
					close(finished)
					// unblock the reader so the connection winds down
					_ = conn.SetReadDeadline(time.Now().Add(time.Second))
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(wsMessageRate), wsMessageBurst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			if !enqueue(errorMessage(errors.New("too many messages"), "rate_limited")) {
				break
			}
			continue
		}
		if msg, ok := h.dispatch(ctx, userID, quizID, inbound); ok && !enqueue(msg) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone

	select {
	case <-finished:
	default:
		// the client left before completion
		if err := h.service.Abandon(ctx, userID, quizID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			log.Warn("abandon on disconnect failed", zap.Error(err))
		}
	}
}

// dispatch applies one client message. State changes reach the client through
// the subscription; only errors and navigation views are answered directly.
func (h *WSHandler) dispatch(ctx context.Context, userID, quizID string, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errors.New("invalid answer payload"), "bad_request"), true
		}
		if _, err := h.service.SelectAnswer(ctx, userID, quizID, payload.QuestionID, payload.OptionIndex); err != nil {
			return errorMessage(err, ""), true
		}
	case "navigate":
		var payload navigatePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(errors.New("invalid navigate payload"), "bad_request"), true
		}
		view, err := h.service.Navigate(ctx, userID, quizID, payload.Index)
		if err != nil {
			return errorMessage(err, ""), true
		}
		return outboundMessage[any]{Type: "question", Payload: view}, true
	case "submit":
		if _, err := h.service.Submit(ctx, userID, quizID); err != nil {
			return errorMessage(err, ""), true
		}
	default:
		return errorMessage(errors.New("unsupported message type"), "bad_request"), true
	}
	return outboundMessage[any]{}, false
}

func errorMessage(err error, code string) outboundMessage[any] {
	body := errorBodyFor(err, eligibility.Decision{})
	if code != "" {
		body.Code = code
	}
	return outboundMessage[any]{Type: "error", Payload: body}
}
