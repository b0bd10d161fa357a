package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	apperrors "github.com/GolferGeek/sync-focus/internal/errors"
	"github.com/GolferGeek/sync-focus/internal/fanout"
	"github.com/GolferGeek/sync-focus/internal/middleware"
	"github.com/GolferGeek/sync-focus/internal/service"
)

// WatchConfig holds websocket settings for watch connections.
type WatchConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
}

// WatchHandler streams snapshots of a collection or document over a
// websocket. Every change announced by the hub triggers a fresh read, so a
// slow connection only ever receives the newest state.
type WatchHandler struct {
	documentService *service.DocumentService
	hub             *fanout.Hub
	upgrader        websocket.Upgrader
	config          WatchConfig
	logger          zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type watchConn struct {
	id         string
	userID     string
	collection string
	docID      string
	query      docstore.Query
	conn       *websocket.Conn
	watch      *fanout.Watch
	closed     chan struct{}
}

func NewWatchHandler(
	documentService *service.DocumentService,
	hub *fanout.Hub,
	config WatchConfig,
	logger zerolog.Logger,
) *WatchHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &WatchHandler{
		documentService: documentService,
		hub:             hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		logger: logger.With().Str("component", "watch").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close ends every open watch connection.
func (h *WatchHandler) Close() {
	h.cancel()
}

func (h *WatchHandler) Watch(c *gin.Context) {
	collection, id, err := docstore.SplitPath(c.Query("path"))
	if err != nil {
		writeError(c, apperrors.InvalidPath(err))
		return
	}
	query := queryFromRequest(c)

	// Register before the first read so no change slips between the two.
	watch := h.hub.Register(collection, id)
	initial, apiErr := h.documentService.Snapshot(c.Request.Context(), collection, id, query)
	if apiErr != nil {
		h.hub.Unregister(watch)
		writeError(c, apiErr)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.Unregister(watch)
		h.logger.Warn().Err(err).Msg("failed to upgrade watch connection")
		return
	}

	wc := &watchConn{
		id:         uuid.NewString(),
		userID:     middleware.UserID(c),
		collection: collection,
		docID:      id,
		query:      query,
		conn:       conn,
		watch:      watch,
		closed:     make(chan struct{}),
	}

	h.logger.Info().
		Str("connection_id", wc.id).
		Str("user_id", wc.userID).
		Str("path", initial.Path).
		Msg("watch connection established")

	go h.writePump(wc, initial)
	go h.readPump(wc)
}

func (h *WatchHandler) writePump(wc *watchConn, initial docstore.Snapshot) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		h.hub.Unregister(wc.watch)
		_ = wc.conn.Close()
		h.logger.Info().Str("connection_id", wc.id).Msg("watch connection closed")
	}()

	if err := h.send(wc, initial); err != nil {
		return
	}

	for {
		select {
		case <-h.ctx.Done():
			_ = wc.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			_ = wc.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-wc.closed:
			return
		case <-wc.watch.Signal():
			snap, apiErr := h.documentService.Snapshot(h.ctx, wc.collection, wc.docID, wc.query)
			if apiErr != nil {
				h.logger.Error().
					Str("connection_id", wc.id).
					Str("code", apiErr.Code).
					Msg("failed to read snapshot for watch")
				return
			}
			if err := h.send(wc, snap); err != nil {
				return
			}
		case <-ticker.C:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug().Err(err).Str("connection_id", wc.id).Msg("failed to send ping")
				return
			}
		}
	}
}

func (h *WatchHandler) send(wc *watchConn, snap docstore.Snapshot) error {
	_ = wc.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	if err := wc.conn.WriteJSON(snap); err != nil {
		h.logger.Debug().Err(err).Str("connection_id", wc.id).Msg("failed to write snapshot")
		return err
	}
	return nil
}

// readPump only services control frames; clients send nothing else.
func (h *WatchHandler) readPump(wc *watchConn) {
	defer close(wc.closed)

	wc.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = wc.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("connection_id", wc.id).Msg("unexpected watch close")
			}
			return
		}
		_ = wc.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	}
}
