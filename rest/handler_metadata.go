package rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/statemachine"
	"go.uber.org/zap"
)

// HandleCreateStateMachine accepts a definition as JSON, or as YAML when the
// content type says so.
func (s *Server) HandleCreateStateMachine(w http.ResponseWriter, r *http.Request) {
	var def *model.StateMachine
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		data, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "error reading body")
			return
		}
		def, err = statemachine.ParseDefinition(data)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		def = &model.StateMachine{}
		if err := decodeBody(r, def); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid state machine definition")
			return
		}
	}
	if len(def.AppId) == 0 {
		respondWithError(w, http.StatusBadRequest, "appId is required")
		return
	}
	sm, err := s.executor.SaveStateMachine(r.Context(), def)
	if err != nil {
		logger.Error("error creating state machine", zap.String("appId", def.AppId), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]any{"appId": sm.AppId(), "id": sm.Id()})
}

func (s *Server) HandleGetStateMachine(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sm, err := s.executor.LoadStateMachine(r.Context(), vars["appId"], vars["id"])
	if err != nil {
		respondStoreError(w, err, "state machine not found")
		return
	}
	respondWithJSON(w, http.StatusOK, sm.Definition())
}

func (s *Server) HandleDeleteStateMachine(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.executor.DeleteStateMachine(r.Context(), vars["appId"], vars["id"]); err != nil {
		respondStoreError(w, err, "state machine not found")
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleGetStateTypes(w http.ResponseWriter, r *http.Request) {
	types := s.executor.Registry().Types()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	respondOK(w, map[string]any{"stateTypes": out})
}

func respondStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, persistence.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, notFound)
		return
	}
	logger.Error("storage error", zap.Error(err))
	respondWithError(w, http.StatusInternalServerError, err.Error())
}
