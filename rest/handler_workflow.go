package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/stepflow/engine"
	"github.com/mohitkumar/stepflow/graph"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"go.uber.org/zap"
)

func (s *Server) HandleRunStateMachine(w http.ResponseWriter, r *http.Request) {
	var req model.ExecutionRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid execution request")
		return
	}
	instance, err := s.executor.ExecuteByID(r.Context(), req)
	if err != nil {
		logger.Error("error running state machine", zap.String("appId", req.AppId), zap.String("stateMachineId", req.StateMachineId), zap.Error(err))
		var invalid engine.InvalidArgumentError
		switch {
		case errors.As(err, &invalid):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, persistence.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "state machine not found")
		default:
			respondWithError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{
		"executionUuid": instance.ExecutionUuid,
		"instanceId":    instance.Uuid,
	})
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instances, err := s.executor.ListInstances(r.Context(), vars["appId"], vars["executionUuid"])
	if err != nil {
		respondStoreError(w, err, "execution not found")
		return
	}
	if len(instances) == 0 {
		respondWithError(w, http.StatusNotFound, "execution not found")
		return
	}
	respondWithJSON(w, http.StatusOK, instances)
}

// HandleGetExecutionGraph renders the execution graph. Vertices flagged for
// skipping are removed unless skip=false.
func (s *Server) HandleGetExecutionGraph(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appId, executionUuid := vars["appId"], vars["executionUuid"]
	instances, err := s.executor.ListInstances(r.Context(), appId, executionUuid)
	if err != nil {
		respondStoreError(w, err, "execution not found")
		return
	}
	if len(instances) == 0 {
		respondWithError(w, http.StatusNotFound, "execution not found")
		return
	}
	skipTypes := make(map[string]graph.SkipType)
	sm, err := s.executor.LoadStateMachine(r.Context(), appId, instances[0].StateMachineId)
	if err != nil {
		logger.Warn("state machine of execution not found", zap.String("executionUuid", executionUuid), zap.Error(err))
	} else {
		for _, def := range sm.Definition().States {
			skipTypes[def.Name] = graph.ToSkipType(def.SkipType)
		}
	}
	g := graph.Generate(appId, executionUuid, instances, skipTypes)
	skip := true
	if v := r.URL.Query().Get("skip"); len(v) > 0 {
		if parsed, err := strconv.ParseBool(v); err == nil {
			skip = parsed
		}
	}
	if skip {
		graph.SkipAll(g)
	}
	respondWithJSON(w, http.StatusOK, g)
}

func (s *Server) HandleGetInstance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instance, err := s.executor.GetInstance(r.Context(), vars["appId"], vars["instanceId"])
	if err != nil {
		respondStoreError(w, err, "instance not found")
		return
	}
	respondWithJSON(w, http.StatusOK, instance)
}

func (s *Server) HandleMaintenance(w http.ResponseWriter, r *http.Request) {
	var on bool
	switch mux.Vars(r)["mode"] {
	case "on":
		on = true
	case "off":
		on = false
	default:
		respondWithError(w, http.StatusBadRequest, "mode must be on or off")
		return
	}
	if err := s.maintenance.Toggle(r.Context(), on); err != nil {
		logger.Error("error toggling maintenance", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, map[string]any{"maintenance": on})
}
