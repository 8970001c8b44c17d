package controllers

import (
	"net/http"

	"github.com/angelmondragon/holopos/api/responses"
	"github.com/angelmondragon/holopos/api/validators"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
)

type connectivityState interface {
	IsOnline() bool
	Set(online bool) bool
}

type connectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type connectivityResponse struct {
	Online  bool `json:"online"`
	Changed bool `json:"changed"`
}

func ConnectivityGet(monitor connectivityState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connectivity monitor unavailable"))
			return
		}
		responses.WriteSuccess(w, connectivityResponse{Online: monitor.IsOnline()})
	}
}

// ConnectivitySet forwards the platform online/offline signal from the UI
// shell. Going online wakes the sync runner through the monitor.
func ConnectivitySet(monitor connectivityState, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connectivity monitor unavailable"))
			return
		}
		var payload connectivityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		changed := monitor.Set(*payload.Online)
		responses.WriteSuccess(w, connectivityResponse{Online: monitor.IsOnline(), Changed: changed})
	}
}
