// Package notify streams job updates to websocket subscribers.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"video-docs-go/internal/logger"
	"video-docs-go/internal/types"
)

const (
	writeWait = 10 * time.Second
	// sendBuffer is how many messages a client may fall behind before it is dropped.
	sendBuffer = 32
)

// Update is the message pushed for every job transition.
type Update struct {
	Type      string           `json:"type"`
	JobID     string           `json:"job_id"`
	State     types.JobState   `json:"state"`
	Progress  int              `json:"progress"`
	Title     string           `json:"title,omitempty"`
	Error     *types.ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Snapshot lists the jobs a new subscriber is sent on connect.
type Snapshot func(ctx context.Context) ([]types.Job, error)

type client struct {
	conn  *websocket.Conn
	jobID string // empty means every job
	send  chan []byte
}

type registration struct {
	client  *client
	initial []byte
}

type broadcast struct {
	jobID   string
	message []byte
}

// Hub fans job updates out to connected websocket clients. Run owns the client
// set and each client's send channel; every connection has its own writer so a
// slow client never holds up the others.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcast
	register   chan registration
	unregister chan *client
	done       chan struct{}
	snapshot   Snapshot
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

func NewHub(snapshot Snapshot, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcast, 64),
		register:   make(chan registration),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.Component("notify"),
	}
}

// Run delivers messages until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case reg := <-h.register:
			h.clients[reg.client] = true
			go h.writePump(reg.client)
			if reg.initial != nil {
				reg.client.send <- reg.initial
			}
			h.log.WithField("clients", len(h.clients)).Info("websocket client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.WithField("clients", len(h.clients)).Info("websocket client disconnected")
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.jobID != "" && c.jobID != msg.jobID {
					continue
				}
				select {
				case c.send <- msg.message:
				default:
					h.log.WithField("job_id", c.jobID).Warn("websocket client too slow, dropping")
					h.drop(c)
				}
			}
		}
	}
}

// drop must only be called from Run.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// writePump writes queued messages to one connection until its send channel is
// closed or a write fails.
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.WithError(err).Warn("websocket write failed, dropping client")
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// OnProgress broadcasts a job_update message. It blocks only while the hub's
// buffer is full.
func (h *Hub) OnProgress(ctx context.Context, job types.Job) error {
	data, err := json.Marshal(Update{
		Type:      "job_update",
		JobID:     job.ID,
		State:     job.State,
		Progress:  job.Progress,
		Title:     job.Title,
		Error:     job.Error,
		Timestamp: job.UpdatedAt,
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- broadcast{jobID: job.ID, message: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return nil
	}
}

// ServeHTTP upgrades the request and subscribes the connection. A job_id query
// parameter limits the stream to that job.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithRequest(r).WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, jobID: r.URL.Query().Get("job_id"), send: make(chan []byte, sendBuffer)}
	reg := registration{client: c}
	if h.snapshot != nil {
		jobs, err := h.snapshot(r.Context())
		if err != nil {
			h.log.WithError(err).Warn("load initial jobs")
		}
		if c.jobID != "" {
			jobs = filterJob(jobs, c.jobID)
		}
		if jobs == nil {
			jobs = []types.Job{}
		}
		reg.initial, _ = json.Marshal(map[string]any{
			"type": "initial_jobs",
			"jobs": jobs,
		})
	}

	select {
	case h.register <- reg:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		for {
			// clients only talk to keep the connection alive
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case h.unregister <- c:
				case <-h.done:
				}
				return
			}
		}
	}()
}

func filterJob(jobs []types.Job, id string) []types.Job {
	var out []types.Job
	for _, j := range jobs {
		if j.ID == id {
			out = append(out, j)
		}
	}
	return out
}
