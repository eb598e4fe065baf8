package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/mohitkumar/stepflow/engine"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/maintenance"
	"github.com/mohitkumar/stepflow/metrics"
	"github.com/mohitkumar/stepflow/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, response model.NotifyResponse) error
}

type Publisher interface {
	Publish(ctx context.Context, msg model.Message) (string, error)
}

type Server struct {
	http.Server
	Port        int
	executor    *engine.StateMachineExecutor
	notifier    Notifier
	maintenance *maintenance.Poller
	publisher   Publisher
}

// NewServer wires the routes. publisher may be nil when no event stream is
// configured.
func NewServer(httpPort int, executor *engine.StateMachineExecutor, notifier Notifier, poller *maintenance.Poller, publisher Publisher) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		Port:        httpPort,
		executor:    executor,
		notifier:    notifier,
		maintenance: poller,
		publisher:   publisher,
	}

	router := mux.NewRouter()
	router.HandleFunc("/statemachine", s.HandleCreateStateMachine).Methods(http.MethodPost)
	router.HandleFunc("/statemachine/{appId}/{id}", s.HandleGetStateMachine).Methods(http.MethodGet)
	router.HandleFunc("/statemachine/{appId}/{id}", s.HandleDeleteStateMachine).Methods(http.MethodDelete)
	router.HandleFunc("/metadata/statetypes", s.HandleGetStateTypes).Methods(http.MethodGet)

	router.HandleFunc("/execution", s.HandleRunStateMachine).Methods(http.MethodPost)
	router.HandleFunc("/execution/{appId}/{executionUuid}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/execution/{appId}/{executionUuid}/graph", s.HandleGetExecutionGraph).Methods(http.MethodGet)
	router.HandleFunc("/instance/{appId}/{instanceId}", s.HandleGetInstance).Methods(http.MethodGet)

	router.HandleFunc("/notify/{correlationId}", s.HandleNotify).Methods(http.MethodPost)
	router.HandleFunc("/event", s.HandleEvent).Methods(http.MethodPost)

	router.HandleFunc("/maintenance/{mode}", s.HandleMaintenance).Methods(http.MethodPut)
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondOK(w, map[string]any{"status": "ok"})
	}).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("http request", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r)
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return sonic.ConfigDefault.NewDecoder(r.Body).Decode(v)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := sonic.Marshal(payload)
	if err != nil {
		logger.Error("error encoding response", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"error encoding response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
