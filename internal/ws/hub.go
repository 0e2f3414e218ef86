package ws

import (
	"sync"

	"github.com/100pro-team-sns/100pro-team-sns/internal/metrics"
)

// session 是单个连接的运行时状态，只通过 Hub 的方法读写。
// roomID 为 0 表示尚未加入任何房间。
type session struct {
	userID uint
	email  string
	roomID uint
}

// Hub 持有全部存活连接及其会话状态，负责房间级和进程级的消息分发。
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]*session
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]*session)}
}

// Register 在握手鉴权成功后登记连接。同一用户允许多个并发连接。
func (h *Hub) Register(c *Client, userID uint, email string) {
	h.mu.Lock()
	h.clients[c] = &session{userID: userID, email: email}
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Unregister 注销连接并返回其断开前绑定的房间，0 表示未绑定。
func (h *Hub) Unregister(c *Client) (roomID uint, ok bool) {
	h.mu.Lock()
	s, found := h.clients[c]
	if found {
		roomID = s.roomID
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if found {
		metrics.WsConnections.Dec()
		c.shutdown()
	}
	return roomID, found
}

// Bind 将连接绑定到房间，返回之前绑定的房间。
func (h *Hub) Bind(c *Client, roomID uint) (prev uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.clients[c]; ok {
		prev = s.roomID
		s.roomID = roomID
	}
	return prev
}

// Unbind 解除连接的房间绑定，返回之前绑定的房间。
func (h *Hub) Unbind(c *Client) (prev uint) {
	return h.Bind(c, 0)
}

// RoomOf 返回连接当前绑定的房间，0 表示未绑定。
func (h *Hub) RoomOf(c *Client) uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.clients[c]; ok {
		return s.roomID
	}
	return 0
}

// Online 返回房间当前绑定的连接数，供 REST 接口复用。
func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.clients {
		if s.roomID == roomID {
			n++
		}
	}
	return n
}

func (h *Hub) roomSnapshot(roomID uint, except *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c, s := range h.clients {
		if c != except && s.roomID == roomID {
			out = append(out, c)
		}
	}
	return out
}

// ToRoom 将事件投递到当前绑定在房间上的全部连接（投递时快照语义）。
func (h *Hub) ToRoom(roomID uint, payload []byte) {
	h.deliver(h.roomSnapshot(roomID, nil), payload)
}

// ToRoomExcept 投递到房间内除指定连接外的全部连接。
func (h *Hub) ToRoomExcept(except *Client, roomID uint, payload []byte) {
	h.deliver(h.roomSnapshot(roomID, except), payload)
}

// ToAll 进程级广播，投递到所有存活连接。
func (h *Hub) ToAll(payload []byte) {
	h.mu.RLock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	h.mu.RUnlock()
	h.deliver(out, payload)
}

// deliver 逐个尝试投递，写缓冲已满的慢连接直接剔除。
func (h *Hub) deliver(clients []*Client, payload []byte) {
	for _, c := range clients {
		if !c.trySend(payload) {
			h.Unregister(c)
		}
	}
}
