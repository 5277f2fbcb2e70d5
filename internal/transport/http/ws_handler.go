package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"classquiz/internal/app"
	"classquiz/internal/domain"
)

type WSHandler struct {
	service      *app.ExamService
	logger       logrus.FieldLogger
	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

func NewWSHandler(service *app.ExamService, logger logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pollInterval: time.Second,
	}
}

// WithPollInterval changes how often the exam deadline is checked.
func (h *WSHandler) WithPollInterval(d time.Duration) *WSHandler {
	h.pollInterval = d
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int    `json:"questionId"`
	Option     string `json:"option"`
}

type answerAck struct {
	QuestionID int    `json:"questionId"`
	Option     string `json:"option"`
	Answered   int    `json:"answered"`
}

type questionView struct {
	ID         int               `json:"id"`
	Stem       string            `json:"stem"`
	Code       string            `json:"code,omitempty"`
	Options    []domain.Option   `json:"options"`
	Category   string            `json:"category"`
	Difficulty domain.Difficulty `json:"difficulty"`
}

type startedPayload struct {
	AttemptID string         `json:"attemptId"`
	Deadline  time.Time      `json:"deadline"`
	Questions []questionView `json:"questions"`
}

type resultPayload struct {
	Result   domain.Result    `json:"result"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and runs one exam attempt per connection.
// The attempt ends with a "result" message (submitted or forced by the deadline),
// a "discarded" message, or is discarded when the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	learner := domain.Learner{
		Name:  r.URL.Query().Get("name"),
		Class: r.URL.Query().Get("class"),
	}
	if learner.Name == "" || learner.Class == "" {
		http.Error(w, "missing name or class", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	// questions first: nothing is left behind in the store when the bank is unavailable
	questions, err := h.service.Questions(ctx)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	attempt, err := h.service.Start(ctx, learner)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	log := h.logger.WithField("attempt", attempt.ID)

	send := make(chan outboundMessage[any], 16)
	finished := make(chan struct{})
	var finishOnce sync.Once
	finish := func() {
		finishOnce.Do(func() {
			close(finished)
			// unblock the reader so the connection can wind down
			_ = conn.SetReadDeadline(time.Now())
		})
	}
	writerDone := make(chan struct{})
	pollDone := make(chan struct{})

	// Single writer; after a write error it keeps draining so senders never block.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				failed = true
			}
		}
	}()

	// Deadline poller: a missed tick only delays the forced submission.
	go func() {
		defer close(pollDone)
		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-finished:
				return
			case <-ticker.C:
				result, err := h.service.CheckDeadline(ctx, attempt.ID)
				if errors.Is(err, domain.ErrAttemptNotFound) {
					return
				}
				if err != nil {
					log.WithError(err).Warn("deadline check failed")
					continue
				}
				if result != nil {
					h.sendResult(ctx, send, *result)
					finish()
					return
				}
			}
		}
	}()

	send <- outboundMessage[any]{Type: "started", Payload: startedPayload{
		AttemptID: attempt.ID,
		Deadline:  attempt.Deadline,
		Questions: viewQuestions(questions),
	}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if isClosed(finished) {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			out, err := h.service.Answer(ctx, attempt.ID, payload.QuestionID, payload.Option)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			if out.Result != nil {
				h.sendResult(ctx, send, *out.Result)
				finish()
				continue
			}
			send <- outboundMessage[any]{Type: "answerAck", Payload: answerAck{
				QuestionID: payload.QuestionID,
				Option:     out.Attempt.Answers[payload.QuestionID],
				Answered:   len(out.Attempt.Answers),
			}}
		case "submit":
			result, err := h.service.Submit(ctx, attempt.ID)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			h.sendResult(ctx, send, result)
			finish()
		case "discard":
			if err := h.service.Discard(ctx, attempt.ID); err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "discarded", Payload: struct{}{}}
			finish()
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	if !isClosed(finished) {
		// client left mid-attempt: the in-progress answers are dropped
		if err := h.service.Discard(context.Background(), attempt.ID); err != nil && !errors.Is(err, domain.ErrAttemptNotFound) {
			log.WithError(err).Warn("failed to discard abandoned attempt")
		}
	}
	finish()
	<-pollDone
	close(send)
	<-writerDone
}

func (h *WSHandler) sendResult(ctx context.Context, send chan<- outboundMessage[any], result domain.Result) {
	payload := resultPayload{Result: result}
	snapshot, err := h.service.Report(ctx, &result)
	if err != nil {
		h.logger.WithError(err).WithField("attempt", result.AttemptID).Warn("class report unavailable")
	} else {
		payload.Snapshot = &snapshot
	}
	send <- outboundMessage[any]{Type: "result", Payload: payload}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func viewQuestions(questions []domain.Question) []questionView {
	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, questionView{
			ID:         q.ID,
			Stem:       q.Stem(),
			Code:       q.Code(),
			Options:    q.Options(),
			Category:   q.Category,
			Difficulty: q.Difficulty,
		})
	}
	return views
}
