package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/storefront/internal/assistant"
	"github.com/oakmart/storefront/internal/session"
)

type AssistantHandler struct {
	Svc *assistant.Service
}

// chatTimeout leaves headroom over the upstream client's own timeout and
// stays under routerTimeout so the budget here is the one that applies.
const chatTimeout = 35 * time.Second

type trackActivityReq struct {
	Type       string `json:"type"`
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
	Query      string `json:"query"`
}

type chatReq struct {
	Message    string `json:"message"`
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
}

func (h *AssistantHandler) Register(r chi.Router) {
	r.Route("/assistant", func(r chi.Router) {
		r.Get("/session", h.getSession)
		r.Post("/activity", h.track)
		r.Post("/chat", h.chat)
		r.Get("/recommendations", h.recommendations)
	})
}

// owner keys the assistant session: the auth token when logged in, the
// guest cookie otherwise. Either way one browser gets one session.
func (h *AssistantHandler) owner(w http.ResponseWriter, r *http.Request) string {
	if t := sessionToken(r); t != "" {
		return t
	}
	return ensureGuestID(w, r)
}

func (h *AssistantHandler) getSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := h.Svc.Session(ctx, h.owner(w, r))
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (h *AssistantHandler) track(w http.ResponseWriter, r *http.Request) {
	var req trackActivityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing type"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sid := h.Svc.Session(ctx, h.owner(w, r))
	u := session.FromContext(ctx)
	h.Svc.TrackActivity(sid, u.ID, assistant.Activity{
		Type:       req.Type,
		ProductID:  req.ProductID,
		CategoryID: req.CategoryID,
		Query:      req.Query,
	})
	// Fire-and-forget: accepted is all the caller ever learns.
	w.WriteHeader(http.StatusAccepted)
}

func (h *AssistantHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing message"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	sid := h.Svc.Session(ctx, h.owner(w, r))
	msgs, err := h.Svc.SendMessage(ctx, sid, req.Message, req.ProductID, req.CategoryID)
	if err != nil {
		// Transcript already ends with the apology; the client shows a
		// toast and renders it.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    "assistant unavailable",
			"messages": msgs,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *AssistantHandler) recommendations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sid := h.Svc.Session(ctx, h.owner(w, r))
	ids, err := h.Svc.Recommendations(ctx, sid, 10)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_ids": ids})
}
