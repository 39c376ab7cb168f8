package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sendloop/courier/queue"
)

type queueDetailResponse struct {
	Name   string       `json:"name"`
	Paused bool         `json:"paused"`
	Counts queue.Counts `json:"counts"`
}

type obliterateResponse struct {
	Removed int64 `json:"removed"`
}

func (a *API) queueCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.eng.Queues().CountsAll(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, counts)
}

func (a *API) queueDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	counts, err := a.eng.Queues().Counts(r.Context(), name)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, queueDetailResponse{
		Name:   name,
		Paused: a.eng.Queues().IsPaused(name),
		Counts: counts,
	})
}

func (a *API) pauseQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Queues().Pause(r.Context(), chi.URLParam(r, "queue")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) resumeQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Queues().Resume(r.Context(), chi.URLParam(r, "queue")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) obliterateQueue(w http.ResponseWriter, r *http.Request) {
	removed, err := a.eng.Queues().Obliterate(r.Context(), chi.URLParam(r, "queue"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respond(w, http.StatusOK, obliterateResponse{Removed: removed})
}
