package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/auth"
	"github.com/100pro-team-sns/100pro-team-sns/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 对应一条存活的 WebSocket 连接。入站事件在 readPump 中
// 严格按到达顺序逐个处理，同一连接的事件不会并发执行。
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uint
	email  string

	mu     sync.Mutex
	closed bool
}

// trySend 非阻塞投递，连接已关闭或写缓冲已满时返回 false。
func (c *Client) trySend(p []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- p:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Serve 处理 WebSocket 握手：先鉴权再升级，鉴权失败的连接不会进入 Hub。
func Serve(hub *Hub, router *Router, db *gorm.DB, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authz := c.GetHeader("Authorization")
			if len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
				token = authz[7:]
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		user, err := auth.VerifyToken(db, token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Uint("user_id", user.ID).Msg("ws upgrade")
			return
		}
		client := &Client{conn: conn, send: make(chan []byte, 256), userID: user.ID, email: user.Email}
		hub.Register(client, user.ID, user.Email)
		log.Info().Uint("user_id", user.ID).Msg("ws connected")

		go client.writePump()
		client.readPump(router)
	}
}

func (c *Client) readPump(router *Router) {
	defer router.Disconnect(c)
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		router.Dispatch(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
