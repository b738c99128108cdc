package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/pkg/httputil"
	"github.com/ignite/transact-messaging/internal/store"
)

// CampaignStore is the subset of internal/store.Store the API depends on
// directly (the orchestrator owns everything else).
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
}

// CampaignOrchestrator is the subset of internal/orchestrator.Orchestrator
// the API depends on.
type CampaignOrchestrator interface {
	Trigger(ctx context.Context, campaignID string) error
}

// Handlers holds the dependencies exercised by the route table.
type Handlers struct {
	store        CampaignStore
	orchestrator CampaignOrchestrator
}

// NewHandlers wires the campaign-facing handlers.
func NewHandlers(s CampaignStore, o CampaignOrchestrator) *Handlers {
	return &Handlers{store: s, orchestrator: o}
}

// triggerResponse is the body of POST /campaigns/{id}/trigger per spec.md §6:
// `{status: "RUNNING"|"READY", taskId}`. taskId identifies the run a caller
// can poll via GET /campaigns/{id}; since a campaign's orchestrator run is
// single-flighted by campaign id (internal/orchestrator.Trigger's DistLock
// key is "campaign:<id>"), the campaign id itself is that token — a second
// caller observing the same id is observing the same already-running trigger.
type triggerResponse struct {
	Status string `json:"status"`
	TaskID string `json:"taskId"`
}

// TriggerCampaign implements POST /campaigns/{id}/trigger: drives the named
// campaign one step through materialization/dispatch and returns 202 once
// the step has run, reporting the campaign's actual post-trigger status (the
// campaign may still be RUNNING on return — Trigger is safe to call again,
// including from the scheduler).
func (h *Handlers) TriggerCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.BadRequest(w, "missing campaign id")
		return
	}

	if err := h.orchestrator.Trigger(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.JSON(w, http.StatusAccepted, triggerResponse{Status: string(c.Status), TaskID: id})
}

// GetCampaign implements GET /campaigns/{id}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.BadRequest(w, "missing campaign id")
		return
	}

	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, c)
}
