package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/monitor"
)

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	a.respond(w, http.StatusOK, a.eng.Monitor().GetAlerts())
}

func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid alert ID: "+err.Error())
		return
	}

	if err := a.eng.Monitor().ResolveAlert(alertID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listLimits(w http.ResponseWriter, r *http.Request) {
	a.respond(w, http.StatusOK, a.eng.Limiter().Snapshot())
}

// health reports per-component health. Critical or unknown overall
// state maps to 503 so load balancers can act on it.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	report := a.eng.Monitor().Health()
	status := http.StatusOK
	if report.Overall == monitor.HealthCritical || report.Overall == monitor.HealthUnknown {
		status = http.StatusServiceUnavailable
	}
	a.respond(w, status, report)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	snap := a.eng.Monitor().Snapshot()
	if snap == nil {
		a.respondError(w, http.StatusServiceUnavailable, "monitor has not sampled yet")
		return
	}
	a.respond(w, http.StatusOK, snap)
}

// metricsLines serves the monitor's plain-text metric export.
func (a *API) metricsLines(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.eng.Monitor().PrometheusLines()))
}
