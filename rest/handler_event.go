package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"go.uber.org/zap"
)

func (s *Server) HandleNotify(w http.ResponseWriter, r *http.Request) {
	correlationId := mux.Vars(r)["correlationId"]
	var req model.NotifyResponse
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid notify request")
		return
	}
	req.CorrelationId = correlationId
	if err := s.notifier.Notify(r.Context(), req); err != nil {
		logger.Error("error notifying", zap.String("correlationId", correlationId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOKWithoutBody(w)
}

type eventRequest struct {
	Topic       string         `json:"topic"`
	SubTopic    string         `json:"subTopic,omitempty"`
	ServiceName string         `json:"serviceName,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// HandleEvent publishes an event onto the stream read by the consumers.
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		respondWithError(w, http.StatusServiceUnavailable, "event stream is not configured")
		return
	}
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event")
		return
	}
	if req.Topic != model.TOPIC_ADVISE && req.Topic != model.TOPIC_START {
		respondWithError(w, http.StatusBadRequest, "unknown topic")
		return
	}
	payload, err := sonic.Marshal(req.Payload)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id, err := s.publisher.Publish(r.Context(), model.Message{
		Topic:       req.Topic,
		SubTopic:    req.SubTopic,
		ServiceName: req.ServiceName,
		Payload:     payload,
	})
	if err != nil {
		logger.Error("error publishing event", zap.String("topic", req.Topic), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, map[string]any{"messageId": id})
}
