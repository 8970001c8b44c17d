package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/holopos/api/responses"
	"github.com/angelmondragon/holopos/internal/offline"
	"github.com/angelmondragon/holopos/internal/reconcile"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
)

type pendingLister interface {
	List(ctx context.Context) ([]offline.PendingSale, error)
}

type reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

type syncScheduler interface {
	Trigger()
}

type pendingResponse struct {
	Count int                   `json:"count"`
	Sales []offline.PendingSale `json:"sales"`
}

type syncFailure struct {
	LocalID string `json:"local_id"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

type syncResponse struct {
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Remaining int           `json:"remaining"`
	Coalesced bool          `json:"coalesced"`
	Aborted   bool          `json:"aborted"`
	Failures  []syncFailure `json:"failures,omitempty"`
}

type syncQueuedResponse struct {
	Queued bool `json:"queued"`
}

func OfflineSales(queue pendingLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offline queue unavailable"))
			return
		}
		sales, err := queue.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sales == nil {
			sales = []offline.PendingSale{}
		}
		responses.WriteSuccess(w, pendingResponse{Count: len(sales), Sales: sales})
	}
}

// OfflineSync runs a drain on the request goroutine. A drain already in
// flight makes this call return immediately with coalesced=true. With
// ?wait=false the drain is handed to the background runner instead, which
// skips it while offline and keeps its retry backoff.
func OfflineSync(r reconciler, scheduler syncScheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("wait") == "false" {
			if scheduler == nil {
				responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync runner unavailable"))
				return
			}
			scheduler.Trigger()
			responses.WriteSuccessStatus(w, http.StatusAccepted, syncQueuedResponse{Queued: true})
			return
		}
		if r == nil {
			responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync unavailable"))
			return
		}
		result, err := r.Reconcile(req.Context())
		if err != nil {
			responses.WriteError(req.Context(), logg, w, err)
			return
		}
		if failures := result.Err(); failures != nil && logg != nil {
			logg.Warn(logg.WithField(req.Context(), "error", failures.Error()), "manual sync left sales queued")
		}
		responses.WriteSuccess(w, newSyncResponse(result))
	}
}

func newSyncResponse(result reconcile.Result) syncResponse {
	resp := syncResponse{
		Synced:    result.Synced,
		Failed:    result.Failed,
		Remaining: result.Remaining,
		Coalesced: result.Coalesced,
		Aborted:   result.Aborted,
	}
	for _, f := range result.Failures {
		failure := syncFailure{LocalID: f.LocalID, Code: string(f.Code)}
		if f.Err != nil {
			failure.Error = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, failure)
	}
	return resp
}
