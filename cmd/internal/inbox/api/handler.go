// Package inboxapi exposes on-demand inbox generation over HTTP.
//
// End users never see raw pipeline reasons: skipped and success map to
// friendly copy, and error maps to a generic retry-later message. The raw
// status/reason still ride along for the frontend and for operators.
package inboxapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"haven/cmd/internal/inbox"
)

const maxRequestBytes = 4 << 10 // 4 KiB

// Engine is the delivery capability consumed by the handler.
// Satisfied by *inbox.Engine.
type Engine interface {
	Run(ctx context.Context, userID string) inbox.Result
}

// Handler wires the inbox generation endpoint to the delivery engine.
type Handler struct {
	log    *slog.Logger
	engine Engine
}

// NewHandler constructs an inbox API handler.
func NewHandler(log *slog.Logger, engine Engine) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("inboxapi: nil engine")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, engine: engine}, nil
}

// Register wires inbox routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/inbox/generate", h.handleGenerate)
}

type generateRequest struct {
	UserID string `json:"userId"`
}

type insertedItemJSON struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type queueJSON struct {
	Total       int  `json:"total"`
	Available   int  `json:"available"`
	Limit       int  `json:"limit"`
	HasCapacity bool `json:"hasCapacity"`
}

type generateResponse struct {
	Status       string             `json:"status"`
	Reason       string             `json:"reason,omitempty"`
	Message      string             `json:"message"`
	Queue        queueJSON          `json:"queue"`
	HistoryCount int                `json:"historyCount"`
	Inserted     []insertedItemJSON `json:"inserted"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := decodeJSON(w, r, maxRequestBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "userId is required")
		return
	}

	res := h.engine.Run(r.Context(), strings.TrimSpace(req.UserID))

	httpStatus := http.StatusOK
	if res.Status == inbox.StatusError {
		// Operational failure; the body still carries the structured outcome.
		httpStatus = http.StatusBadGateway
	}

	writeJSON(w, httpStatus, toGenerateResponse(res))
}

func toGenerateResponse(res inbox.Result) generateResponse {
	out := generateResponse{
		Status:       string(res.Status),
		Reason:       string(res.Reason),
		Message:      userMessage(res.Status),
		HistoryCount: res.HistoryCount,
		Queue: queueJSON{
			Total:       res.Queue.Total,
			Available:   res.Queue.Available,
			Limit:       res.Queue.Limit,
			HasCapacity: res.Queue.HasCapacity,
		},
		Inserted: make([]insertedItemJSON, 0, len(res.Inserted)),
	}

	for _, it := range res.Inserted {
		out.Inserted = append(out.Inserted, insertedItemJSON{
			ID:        it.ID,
			Type:      string(it.Kind),
			Title:     it.Title,
			Status:    it.Status,
			CreatedAt: it.CreatedAt,
		})
	}

	return out
}

func userMessage(status inbox.Status) string {
	switch status {
	case inbox.StatusSuccess:
		return "New items are available in your inbox."
	case inbox.StatusSkipped:
		return "Your inbox is up to date."
	default:
		return "We couldn't refresh your inbox right now. Please try again later."
	}
}
