package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"ytqgo/internal/backend"
	"ytqgo/internal/models"
	"ytqgo/internal/track"
	"ytqgo/internal/utils"
	"ytqgo/internal/websocket"
)

const healthStaleAfter = 30 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError translates tracker/backend errors into local HTTP statuses:
// validation 400, missing jobs 404, not-yet-completed downloads 409,
// upstream rejections 422, unreachable backend 502.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Kind {
	case backend.KindValidation:
		status = http.StatusBadRequest
	case backend.KindNotFound:
		status = http.StatusNotFound
	case backend.KindNotReady:
		status = http.StatusConflict
	case backend.KindUpstream:
		status = http.StatusUnprocessableEntity
	case backend.KindNetwork:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error":   apiErr.Kind.String(),
		"message": apiErr.Message,
		"code":    apiErr.Code,
	})
}

// HealthHandler proxies the backend health probe, holding the last answer
// for a short window so UI polling does not hammer the backend.
func HealthHandler(tracker *track.Tracker) http.HandlerFunc {
	var (
		mu        sync.Mutex
		cached    models.Health
		fetchedAt time.Time
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if !fetchedAt.IsZero() && time.Since(fetchedAt) < healthStaleAfter {
			health := cached
			mu.Unlock()
			writeJSON(w, http.StatusOK, health)
			return
		}
		mu.Unlock()

		health, err := tracker.Health(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		mu.Lock()
		cached = health
		fetchedAt = time.Now()
		mu.Unlock()
		writeJSON(w, http.StatusOK, health)
	}
}

func FormatsHandler(tracker *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Url string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}

		catalog, err := tracker.ResolveFormats(r.Context(), req.Url)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := struct {
			models.FormatCatalog
			Recommended *models.VideoFormat `json:"recommended,omitempty"`
		}{FormatCatalog: catalog}
		if best, ok := catalog.BestVideo(); ok {
			resp.Recommended = &best
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func PreviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Url string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if req.Url == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}

		preview, err := utils.ExtractLinkPreview(req.Url)
		if err != nil {
			slog.Warn("Link preview failed", "url", req.Url, "error", err)
			writeJSON(w, http.StatusOK, utils.LinkPreview{
				Url:      req.Url,
				Platform: utils.PlatformFromURL(req.Url),
			})
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func SubmitJobHandler(tracker *track.Tracker, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Url    string `json:"url"`
			Format string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}

		job, err := tracker.Submit(r.Context(), req.Url, req.Format)
		if err != nil {
			writeError(w, err)
			return
		}

		hub.BroadcastJobsChanged()
		writeJSON(w, http.StatusAccepted, job)
	}
}

func ListJobsHandler(tracker *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 0)
		pageSize := queryInt(r, "pageSize", track.DefaultPageSize)

		// A failed refresh keeps the last good snapshot; the error rides
		// alongside it instead of replacing it.
		jobPage, err := tracker.Page(page, pageSize)
		resp := struct {
			models.JobPage
			View       models.JobsView `json:"view"`
			FetchError string          `json:"fetchError,omitempty"`
		}{JobPage: jobPage, View: tracker.Jobs()}
		if err != nil {
			resp.FetchError = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func JobDetailHandler(tracker *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}

		job, err := tracker.Detail(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func DownloadHandler(tracker *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}

		info, err := tracker.ResolveDownload(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if info.Filename == "" {
			if job, derr := tracker.Detail(r.Context(), id); derr == nil {
				info.Filename = utils.GenerateFilename(job)
			}
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func UnwatchJobHandler(tracker *track.Tracker, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}

		tracker.Unwatch(id)
		hub.BroadcastJobsChanged()
		writeJSON(w, http.StatusOK, map[string]string{"status": "unwatched"})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
