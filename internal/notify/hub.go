package notify

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Message is one frame pushed to a user's connections.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	UserID    uint        `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type client struct {
	id     string
	userID uint
	conn   *websocket.Conn
	send   chan Message
	hub    *Hub
}

// Hub 按用户维护 WebSocket 连接并推送通知
type Hub struct {
	clients    map[uint]map[string]*client
	register   chan *client
	unregister chan *client
	deliver    chan Message
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		clients:    make(map[uint]map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		deliver:    make(chan Message, 256),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 生产环境需要验证源
			},
		},
	}
}

// Run processes registrations and deliveries until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			conns, ok := h.clients[c.userID]
			if !ok {
				conns = make(map[string]*client)
				h.clients[c.userID] = conns
			}
			conns[c.id] = c
			h.mutex.Unlock()
			h.logger.Debugf("notify: client %s connected for user %d", c.id, c.userID)

		case c := <-h.unregister:
			h.mutex.Lock()
			h.remove(c)
			h.mutex.Unlock()

		case msg := <-h.deliver:
			h.mutex.Lock()
			for _, c := range h.clients[msg.UserID] {
				select {
				case c.send <- msg:
				default:
					// slow consumer
					h.remove(c)
				}
			}
			h.mutex.Unlock()

		case <-h.done:
			h.mutex.Lock()
			for _, conns := range h.clients {
				for _, c := range conns {
					h.remove(c)
				}
			}
			h.mutex.Unlock()
			return
		}
	}
}

// remove must be called with the write lock held.
func (h *Hub) remove(c *client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c.id]; !ok {
		return
	}
	delete(conns, c.id)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	h.logger.Debugf("notify: client %s disconnected", c.id)
}

// Stop terminates Run and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// SendToUser queues msg for every connection of userID. It never blocks; a
// full delivery buffer drops the frame.
func (h *Hub) SendToUser(userID uint, msg Message) {
	msg.UserID = userID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.deliver <- msg:
	default:
		h.logger.Warnf("notify: delivery buffer full, dropping %s for user %d", msg.Type, userID)
	}
}

// ClientCount 返回当前连接数
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// HandleWebSocket upgrades the request and subscribes it to the user_id
// query parameter's notifications.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 32)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("notify: websocket upgrade failed: %v", err)
		return
	}
	cl := &client{
		id:     uuid.NewString(),
		userID: uint(userID),
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		hub:    h,
	}
	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}
	go cl.writePump()
	go cl.readPump()
}

// readPump only services control frames; clients do not send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("notify: websocket error: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debugf("notify: write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
