package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sendloop/courier/dlq"
	"github.com/sendloop/courier/id"
)

type dlqCountResponse struct {
	Count int64 `json:"count"`
}

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := a.eng.DLQ().Store().ListDLQ(r.Context(), dlq.ListOpts{
		Limit:  intQuery(q.Get("limit"), 100),
		Offset: intQuery(q.Get("offset"), 0),
		Queue:  q.Get("queue"),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid entry ID: "+err.Error())
		return
	}

	entry, err := a.eng.DLQ().Store().GetDLQ(r.Context(), entryID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, entry)
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid entry ID: "+err.Error())
		return
	}

	rec, err := a.eng.Replay(r.Context(), entryID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusCreated, rec)
}

func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQ().Store().CountDLQ(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, dlqCountResponse{Count: count})
}
