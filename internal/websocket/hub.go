package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ytqgo/internal/models"
	"ytqgo/internal/utils"
)

// Hub fans tracked-state updates out to connected observers. Two message
// kinds go over the wire: a full job snapshot whenever a watcher observes
// a change, and a bare "jobs" ping telling clients the list view moved.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
}

type JobUpdate struct {
	Type          string      `json:"type"`
	Job           *models.Job `json:"job,omitempty"`
	DownloadSpeed string      `json:"downloadSpeed,omitempty"`
	FileSize      string      `json:"fileSize,omitempty"`
	Eta           string      `json:"eta,omitempty"`
	FetchError    string      `json:"fetchError,omitempty"`
}

func NewJobUpdate(job models.Job, fetchErr string) *JobUpdate {
	update := &JobUpdate{
		Type:          "job",
		Job:           &job,
		DownloadSpeed: utils.FormatSpeed(job.Speed),
		Eta:           utils.FormatDuration(job.EtaSec),
		FetchError:    fetchErr,
	}
	if job.FileSizeBytes > 0 {
		update.FileSize = utils.FormatSize(job.FileSizeBytes)
	}
	return update
}

func NewHub() *Hub {
	return &Hub{
		mu:      sync.Mutex{},
		clients: make(map[*websocket.Conn]bool),
		// Watcher notifications run under the watcher lock, so sends must
		// never block on slow readers.
		broadcast: make(chan []byte, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) Run() {
	for {
		msg := <-h.broadcast
		h.mu.Lock()
		for client := range h.clients {
			err := client.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) BroadcastJob(update *JobUpdate) {
	msg, err := json.Marshal(update)
	if err != nil {
		slog.Error("Failed to marshal job update", "error", err)
		return
	}
	h.send(msg)
}

func (h *Hub) BroadcastJobsChanged() {
	h.send([]byte(`{"type": "jobs"}`))
}

func (h *Hub) send(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("Dropping websocket update, broadcast backlog full")
	}
}

func (h *Hub) WsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("Client connected", "remote_addr", r.RemoteAddr)
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		slog.Info("Client disconnected")
	}()

	waitTimeout := 60 * time.Second
	for {
		conn.SetReadDeadline(time.Now().Add(waitTimeout))
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WS read error", "error", err)
			}
			break
		}
	}
}
