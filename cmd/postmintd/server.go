package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"postmint/core/pipeline"
	"postmint/core/types"
	"postmint/native/mintescrow"
	"postmint/native/proof"
	"postmint/native/royalty"
)

// handler exposes the inbound request surface consumed from the upstream
// gateway: funded mint requests, cancellation, proof submission and royalty
// queries. Authentication and capture concerns live upstream.
type handler struct {
	escrow       *mintescrow.Engine
	orchestrator *pipeline.Orchestrator
	royalties    *royalty.Engine
	logger       *slog.Logger
}

func newHandler(escrow *mintescrow.Engine, orchestrator *pipeline.Orchestrator, royalties *royalty.Engine, logger *slog.Logger) *handler {
	return &handler{escrow: escrow, orchestrator: orchestrator, royalties: royalties, logger: logger}
}

// Routes mounts the request surface on a chi router.
func (h *handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/requests", h.handleRequest)
	r.Delete("/requests/{contentID}", h.handleCancel)
	r.Post("/requests/{contentID}/proof", h.handleProof)
	r.Get("/royalties/{author}", h.handleRoyalty)
	return r
}

type mintRequestPayload struct {
	ContentID     string `json:"content_id"`
	Caller        string `json:"caller"`
	Deposit       string `json:"deposit"`
	RecipientHint string `json:"recipient_hint"`
}

type proofPayload struct {
	Caller    string               `json:"caller"`
	Journal   string               `json:"journal,omitempty"`
	Metadata  *types.TokenMetadata `json:"metadata,omitempty"`
	Proof     string               `json:"proof,omitempty"`
	Signature string               `json:"signature,omitempty"`
}

func (h *handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var payload mintRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	deposit, ok := new(big.Int).SetString(strings.TrimSpace(payload.Deposit), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid deposit"))
		return
	}
	req, err := h.escrow.Request(caller, payload.ContentID, deposit, payload.RecipientHint)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"content_id": req.ContentID,
		"status":     req.Status.String(),
		"escrowed":   req.EscrowedAmount.String(),
	})
}

func (h *handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	caller, err := parseAddress(r.URL.Query().Get("caller"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	refund, err := h.escrow.Cancel(caller, contentID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content_id": contentID,
		"refund":     refund.String(),
	})
}

func (h *handler) handleProof(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	var payload proofPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	artifact := proof.Artifact{Metadata: payload.Metadata}
	var err error
	if artifact.Journal, err = decodeHexField(payload.Journal); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if artifact.Proof, err = decodeHexField(payload.Proof); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if artifact.Signature, err = decodeHexField(payload.Signature); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	descriptor, err := h.orchestrator.Run(r.Context(), contentID, payload.Caller, artifact)
	if err != nil {
		h.logger.Warn("proof submission rejected", "contentId", contentID, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

func (h *handler) handleRoyalty(w http.ResponseWriter, r *http.Request) {
	author := chi.URLParam(r, "author")
	balance, err := h.royalties.BalanceOf(author)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"author":  balance.Author,
		"balance": balance.Amount.String(),
	})
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return addr, errors.New("invalid caller address")
	}
	copy(addr[:], decoded)
	return addr, nil
}

func decodeHexField(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, errors.New("invalid hex payload")
	}
	return decoded, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mintescrow.ErrInvalidIdentifier),
		errors.Is(err, proof.ErrMalformedSignature),
		errors.Is(err, proof.ErrMetadataPayload):
		return http.StatusBadRequest
	case errors.Is(err, mintescrow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mintescrow.ErrAlreadyMinted),
		errors.Is(err, mintescrow.ErrLocked),
		errors.Is(err, mintescrow.ErrTooEarly):
		return http.StatusConflict
	case errors.Is(err, mintescrow.ErrInsufficientDeposit),
		errors.Is(err, mintescrow.ErrUnderfunded),
		errors.Is(err, mintescrow.ErrInsufficientBalance),
		errors.Is(err, royalty.ErrInsufficientBalance),
		errors.Is(err, royalty.ErrInsufficientReserve):
		return http.StatusPaymentRequired
	case errors.Is(err, mintescrow.ErrNotRequester),
		errors.Is(err, royalty.ErrUnauthorized),
		errors.Is(err, proof.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, proof.ErrInvalidProof),
		errors.Is(err, proof.ErrInvalidSignature),
		errors.Is(err, proof.ErrJournalMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
