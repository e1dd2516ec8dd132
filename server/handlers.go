package server

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/estafette/estafette-ci-orchestrator/pkg/definition"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleGetPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines := s.pipelineService.GetPipelines(r.Context())
	if pipelines == nil {
		pipelines = []*api.Pipeline{}
	}
	WriteJSON(w, http.StatusOK, pipelines)
}

// handleSubmitPipeline accepts a yaml or json definition; the pipeline starts right away unless ?start=false is passed
func (s *Server) handleSubmitPipeline(w http.ResponseWriter, r *http.Request) {

	data, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("reading request body failed: %v", err))
		return
	}

	def, err := definition.Parse(data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pipeline, err := s.pipelineService.Submit(r.Context(), def)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if r.URL.Query().Get("start") != "false" {
		if _, err := s.pipelineService.StartAsync(s.baseCtx, pipeline.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		log.Info().Msgf("[%v] Pipeline %v submitted and started over http", pipeline.ID, pipeline.Name)
	}

	WriteJSON(w, http.StatusCreated, pipeline)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	pipeline, err := s.pipelineService.GetPipeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pipeline)
}

func (s *Server) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.pipelineService.GetJobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.pipelineService.GetArtifacts(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "jobID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []api.Artifact{}
	}
	WriteJSON(w, http.StatusOK, artifacts)
}

func (s *Server) handleCancelPipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.pipelineService.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	pipeline, err := s.pipelineService.GetPipeline(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, pipeline)
}

func (s *Server) handleGetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.approvalClient.GetPendingApprovals())
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.approvalClient.Approve(chi.URLParam(r, "id"), chi.URLParam(r, "step")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {

	var request rejectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("malformed reject request: %v", err))
		return
	}

	if err := s.approvalClient.Reject(chi.URLParam(r, "id"), chi.URLParam(r, "step"), request.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
