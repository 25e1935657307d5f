// Package api serves an HTTP view of a node's key mappings and recorded transactions.
// Mappings are only ever written by a verified key request, never through this API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
)

// Mapping is the JSON representation of an identity.Mapping.
type Mapping struct {
	Key      keys.PublicKey `json:"key"`
	Owner    party.ID       `json:"owner"`
	OwnerKey keys.PublicKey `json:"owner_key"`
}

func fromMapping(m identity.Mapping) Mapping {
	return Mapping{Key: m.Key, Owner: m.Owner.ID, OwnerKey: m.Owner.OwningKey}
}

type Server struct {
	self     party.Party
	registry identity.Registry
	store    tx.Store
	log      zerolog.Logger
}

func New(self party.Party, reg identity.Registry, store tx.Store, log zerolog.Logger) *Server {
	return &Server{self: self, registry: reg, store: store, log: log}
}

// Handler returns the router of the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Route("/v1", func(api chi.Router) {
		api.Get("/mappings", s.listMappings)
		api.Get("/mappings/{key}", s.getMapping)
		api.Post("/transactions", s.recordTransaction)
		api.Get("/outputs/{tx}/{index}", s.getOutput)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "node": s.self.ID})
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	all, err := s.registry.Mappings(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list mappings")
		writeError(w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to list mappings")
		return
	}
	mappings := make([]Mapping, 0, len(all))
	for _, m := range all {
		mappings = append(mappings, fromMapping(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

func (s *Server) getMapping(w http.ResponseWriter, r *http.Request) {
	key, err := keys.ParsePublicKeyHex(chi.URLParam(r, "key"))
	if err != nil {
		code := "INVALID_KEY"
		if !errors.Is(err, keys.ErrInvalidPublicKey) {
			code = "BAD_REQUEST"
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}
	owner, ok, err := s.registry.Resolve(r.Context(), key)
	if err != nil {
		s.log.Error().Err(err).Stringer("key", key).Msg("resolve")
		writeError(w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to resolve key")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no mapping for key")
		return
	}
	writeJSON(w, http.StatusOK, fromMapping(identity.Mapping{Key: key, Owner: owner}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"request_id": "req_" + uuid.NewString(),
		"error":      map[string]any{"code": code, "message": message},
	})
}
