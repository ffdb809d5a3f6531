package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tasknest/data-sync/config"
	"github.com/tasknest/data-sync/middleware"
	"github.com/tasknest/data-sync/sync"
)

// SyncServer exposes the sync protocol over HTTP/JSON. It owns nothing but
// the protocol service; auth and metrics are middleware concerns.
type SyncServer struct {
	service *sync.Service
}

func NewSyncServer(service *sync.Service) *SyncServer {
	return &SyncServer{service: service}
}

func (s *SyncServer) HandlePull(w http.ResponseWriter, r *http.Request) {
	var req sync.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	response, err := s.service.Pull(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, sync.ErrInvalidWatermark) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("pull failed for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "pull failed")
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *SyncServer) HandlePush(w http.ResponseWriter, r *http.Request) {
	var req sync.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.service.Push(r.Context(), userID, req.Changes); err != nil {
		if errors.Is(err, sync.ErrMalformedChangeSet) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("push failed for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "push failed")
		return
	}
	writeJSON(w, http.StatusOK, sync.PushResponse{Success: true})
}

func CreateRouter(config *config.Config, syncServer *SyncServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(config))
		r.Post("/sync/pull", syncServer.HandlePull)
		r.Post("/sync/push", syncServer.HandlePush)
	})

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
