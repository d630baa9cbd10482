package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/phonebridge/internal/session"
	"github.com/MrWong99/phonebridge/internal/store"
)

// defaultListLimit caps GET /records when no limit is given.
const defaultListLimit = 50

// registerAPI adds the admin routes to mux.
//
//	GET    /calls                      live calls
//	GET    /calls/{callID}             one live call
//	DELETE /calls/{callID}             hang up a live call
//	GET    /records                    finished calls, newest first
//	GET    /records/{callID}           one finished call
//	GET    /records/{callID}/transcript  plain-text transcript
func (a *App) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /calls", a.listCalls)
	mux.HandleFunc("GET /calls/{callID}", a.getCall)
	mux.HandleFunc("DELETE /calls/{callID}", a.hangupCall)
	mux.HandleFunc("GET /records", a.listRecords)
	mux.HandleFunc("GET /records/{callID}", a.getRecord)
	mux.HandleFunc("GET /records/{callID}/transcript", a.getTranscript)
}

type callList struct {
	Calls []session.Info `json:"calls"`
}

// recordView is the JSON form of a [store.Record].
type recordView struct {
	CallID      string    `json:"call_id"`
	StreamID    string    `json:"stream_id,omitempty"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	EndedAt     time.Time `json:"ended_at"`
	CallerBytes int       `json:"caller_bytes"`
	Transcript  []string  `json:"transcript,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

func viewRecord(rec store.Record, withTranscript bool) recordView {
	v := recordView{
		CallID:      rec.CallID,
		StreamID:    rec.StreamID,
		Mode:        string(rec.Mode),
		Status:      string(rec.Status),
		StartedAt:   rec.StartedAt,
		EndedAt:     rec.EndedAt,
		CallerBytes: rec.CallerBytes,
		Summary:     rec.Summary,
	}
	if withTranscript {
		v.Transcript = make([]string, 0, len(rec.Entries))
		for _, e := range rec.Entries {
			v.Transcript = append(v.Transcript, e.Line())
		}
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *App) listCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, callList{Calls: a.sessions.List()})
}

func (a *App) getCall(w http.ResponseWriter, r *http.Request) {
	s, ok := a.sessions.Get(r.PathValue("callID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: ErrCallNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (a *App) hangupCall(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Hangup(r.PathValue("callID")); err != nil {
		if errors.Is(err, ErrCallNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ending"})
}

func (a *App) listRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := a.guard.List(r.Context(), limit)
	if err != nil {
		slog.Error("list records", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "store unavailable"})
		return
	}
	views := make([]recordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, viewRecord(rec, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": views})
}

func (a *App) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.record(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewRecord(rec, true))
}

func (a *App) getTranscript(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.record(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rec.Text()))
}

// record loads the record named in the path, writing the error response
// itself when it cannot.
func (a *App) record(w http.ResponseWriter, r *http.Request) (store.Record, bool) {
	rec, err := a.guard.Get(r.Context(), r.PathValue("callID"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return store.Record{}, false
	case err != nil:
		slog.Error("get record", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "store unavailable"})
		return store.Record{}, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "err", err)
	}
}
