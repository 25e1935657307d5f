package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
)

// maxTransactionSize bounds the body of a transaction request.
const maxTransactionSize = 1 << 20

type stateRef struct {
	TxID  tx.ID  `json:"tx"`
	Index uint32 `json:"index"`
}

type state struct {
	Contract     string           `json:"contract"`
	Participants []keys.PublicKey `json:"participants"`
	Data         []byte           `json:"data,omitempty"`
}

type transactionRequest struct {
	Inputs  []stateRef `json:"inputs"`
	Outputs []state    `json:"outputs"`
}

// Participant is a participant key, with its owner when the registry knows it.
type Participant struct {
	Key   keys.PublicKey `json:"key"`
	Owner party.ID       `json:"owner,omitempty"`
}

// Output is the JSON representation of a tx.State.
type Output struct {
	Contract     string        `json:"contract"`
	Participants []Participant `json:"participants"`
	Data         []byte        `json:"data,omitempty"`
}

// RecordedTransaction is returned when a transaction is recorded.
// ConfidentialIdentities are the keys a sync of the transaction would offer to a peer.
type RecordedTransaction struct {
	ID                     tx.ID         `json:"id"`
	ConfidentialIdentities []Participant `json:"confidential_identities"`
}

func (s *Server) participants(r *http.Request, ks []keys.PublicKey) ([]Participant, error) {
	out := make([]Participant, 0, len(ks))
	for _, k := range ks {
		owner, ok, err := s.registry.Resolve(r.Context(), k)
		if err != nil {
			return nil, err
		}
		p := Participant{Key: k}
		if ok {
			p.Owner = owner.ID
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTransactionSize)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON")
		return
	}
	if len(req.Outputs) == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "a transaction needs at least one output")
		return
	}
	inputs := make([]tx.StateRef, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		inputs = append(inputs, tx.StateRef{TxID: in.TxID, Index: in.Index})
	}
	outputs := make([]tx.State, 0, len(req.Outputs))
	for _, out := range req.Outputs {
		for _, k := range out.Participants {
			if k.IsZero() {
				writeError(w, http.StatusBadRequest, "INVALID_KEY", "empty participant key")
				return
			}
		}
		outputs = append(outputs, tx.State{Contract: out.Contract, Participants: out.Participants, Data: out.Data})
	}

	t, err := tx.New(inputs, outputs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	ctx := s.log.WithContext(r.Context())
	if err = s.store.RecordTransaction(ctx, t); err != nil {
		s.log.Error().Err(err).Stringer("tx", t.ID).Msg("record transaction")
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to record transaction")
		return
	}
	confidential, err := tx.ConfidentialIdentities(ctx, t, s.store, s.registry)
	if err != nil {
		s.log.Error().Err(err).Stringer("tx", t.ID).Msg("extract identities")
		writeError(w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to resolve participants")
		return
	}
	resolved, err := s.participants(r, confidential)
	if err != nil {
		s.log.Error().Err(err).Stringer("tx", t.ID).Msg("resolve participants")
		writeError(w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to resolve participants")
		return
	}
	writeJSON(w, http.StatusCreated, RecordedTransaction{ID: t.ID, ConfidentialIdentities: resolved})
}

func (s *Server) getOutput(w http.ResponseWriter, r *http.Request) {
	id, err := tx.ParseID(chi.URLParam(r, "tx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TX", err.Error())
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INDEX", "index must be a non negative integer")
		return
	}

	st, err := s.store.LoadPriorOutput(r.Context(), tx.StateRef{TxID: id, Index: uint32(index)})
	if errors.Is(err, tx.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such output")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Stringer("tx", id).Msg("load output")
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load output")
		return
	}
	participants, err := s.participants(r, st.Participants)
	if err != nil {
		s.log.Error().Err(err).Stringer("tx", id).Msg("resolve participants")
		writeError(w, http.StatusInternalServerError, "REGISTRY_ERROR", "failed to resolve participants")
		return
	}
	writeJSON(w, http.StatusOK, Output{Contract: st.Contract, Participants: participants, Data: st.Data})
}
