package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sendloop/courier/id"
	"github.com/sendloop/courier/job"
	"github.com/sendloop/courier/queue"
)

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var email job.Email
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := a.eng.Send(r.Context(), &email)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusCreated, rec)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := job.State(q.Get("state"))
	if state == "" {
		state = job.StateWaiting
	}

	jobs, err := a.eng.Queues().ListJobs(r.Context(), state, queue.ListOpts{
		Limit:  intQuery(q.Get("limit"), 100),
		Offset: intQuery(q.Get("offset"), 0),
		Queue:  q.Get("queue"),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
		return
	}

	rec, err := a.eng.Queues().GetJob(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, rec)
}

func (a *API) removeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
		return
	}

	if err := a.eng.Queues().Remove(r.Context(), jobID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
