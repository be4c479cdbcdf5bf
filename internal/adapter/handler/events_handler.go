package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/kitties/internal/core/domain"
)

const (
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	writeTimeout = 10 * time.Second
)

type EventSubscriber interface {
	Subscribe(account domain.AccountID) (string, <-chan domain.Event)
	Unsubscribe(id string)
}

// EventsHandler streams ledger events to websocket clients.
type EventsHandler struct {
	subscriber EventSubscriber
	upgrader   websocket.Upgrader
}

func NewEventsHandler(subscriber EventSubscriber) *EventsHandler {
	return &EventsHandler{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *EventsHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/events", h.Stream)
}

func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	account := domain.AccountID(c.Query("account"))
	id, events := h.subscriber.Subscribe(account)
	log.WithField("subscriber", id).Debug("event subscriber connected")

	done := make(chan struct{})
	go h.readLoop(conn, done)
	h.writeLoop(conn, id, events, done)
}

// readLoop drains client frames so control messages are processed, and
// signals done once the peer goes away.
func (h *EventsHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (h *EventsHandler) writeLoop(conn *websocket.Conn, id string, events <-chan domain.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.subscriber.Unsubscribe(id)
		conn.Close()
		log.WithField("subscriber", id).Debug("event subscriber disconnected")
	}()

	for {
		select {
		case <-done:
			return

		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.WithError(err).WithField("subscriber", id).Debug("websocket write error")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
