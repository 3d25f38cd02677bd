package runtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/loqalabs/whisperlite/internal/commands"
)

const maxRequestBytes = 64 << 10

type startRequest struct {
	ModelPath string `json:"model_path"`
}

// newMux binds the host commands to HTTP. Command outcomes travel in the
// Result body; the status code only reports request problems.
func newMux(svc *commands.Service, logger *slog.Logger) *http.ServeMux {
	log := logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/recording/start", func(w http.ResponseWriter, req *http.Request) {
		var body startRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeResult(w, log, http.StatusBadRequest, commands.Result{Error: "invalid request body: " + err.Error()})
			return
		}
		writeResult(w, log, http.StatusOK, svc.Start(req.Context(), body.ModelPath))
	})
	mux.HandleFunc("POST /v1/recording/stop", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, log, http.StatusOK, svc.Stop())
	})
	mux.HandleFunc("GET /v1/recording", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, log, http.StatusOK, svc.Status())
	})
	mux.HandleFunc("GET /v1/transcript", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, log, http.StatusOK, svc.GetTranscript())
	})
	mux.HandleFunc("POST /v1/transcript/save", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, log, http.StatusOK, svc.SaveTranscript())
	})
	mux.HandleFunc("DELETE /v1/transcript", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, log, http.StatusOK, svc.ClearTranscript())
	})
	mux.HandleFunc("GET /v1/sessions", func(w http.ResponseWriter, req *http.Request) {
		limit, ok := parseLimit(w, log, req)
		if !ok {
			return
		}
		writeResult(w, log, http.StatusOK, svc.Sessions(req.Context(), limit))
	})
	mux.HandleFunc("GET /v1/sessions/{id}/fragments", func(w http.ResponseWriter, req *http.Request) {
		limit, ok := parseLimit(w, log, req)
		if !ok {
			return
		}
		writeResult(w, log, http.StatusOK, svc.SessionFragments(req.Context(), req.PathValue("id"), limit))
	})
	return mux
}

// parseLimit reads the optional limit query parameter. Zero means the store
// default.
func parseLimit(w http.ResponseWriter, log *slog.Logger, req *http.Request) (int, bool) {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeResult(w, log, http.StatusBadRequest, commands.Result{Error: "invalid limit: " + raw})
		return 0, false
	}
	return limit, true
}

func writeResult(w http.ResponseWriter, log *slog.Logger, status int, res commands.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Debug("write response failed", slog.String("error", err.Error()))
	}
}
