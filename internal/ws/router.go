package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/metrics"
	"github.com/100pro-team-sns/100pro-team-sns/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNotAuthorized 表示用户不是房间成员或房间已失效。
var ErrNotAuthorized = errors.New("not authorized")

// Store 是路由器对存储层的最小依赖。
type Store interface {
	// AuthorizeJoin 校验房间存在、未过期且用户是成员。每次 join 都重新校验，不做缓存。
	AuthorizeJoin(userID, roomID uint, now time.Time) error
	// AppendMessage 在同一事务内重新校验成员资格与过期后落库，避免校验与写入之间的竞态。
	AppendMessage(userID, roomID uint, content string, link *string) (*models.Message, error)
}

// Router 将入站连接事件分发到授权、存储和广播逻辑。
// 每条连接的事件由其 readPump 串行送入，跨连接的事件可能交错。
type Router struct {
	hub   *Hub
	store Store
}

func NewRouter(hub *Hub, store Store) *Router {
	return &Router{hub: hub, store: store}
}

// Dispatch 处理一条入站事件帧。所有错误都转换为仅发给调用方的 error 事件，
// 不会终止连接。
func (r *Router) Dispatch(c *Client, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.trySend(ErrorEvent("Invalid event payload"))
		return
	}
	switch in.Event {
	case EvtJoinRoom:
		r.handleJoin(c, in.Data)
	case EvtSendMessage:
		r.handleSend(c, in.Data)
	case EvtLeaveRoom:
		r.leave(c, "left the room")
	default:
		c.trySend(ErrorEvent("Unknown event"))
	}
}

func (r *Router) handleJoin(c *Client, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 {
		c.trySend(ErrorEvent("roomId is required"))
		return
	}
	if err := r.store.AuthorizeJoin(c.userID, p.RoomID, time.Now()); err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			c.trySend(ErrorEvent("Not authorized to join this room"))
		} else {
			log.Error().Err(err).Uint("user_id", c.userID).Uint("room_id", p.RoomID).Msg("authorize join")
			c.trySend(ErrorEvent("Failed to join room"))
		}
		return
	}
	// 换房时先原子地离开旧房间并通知，再绑定新房间。
	prev := r.hub.Bind(c, p.RoomID)
	if prev != 0 && prev != p.RoomID {
		r.hub.ToRoomExcept(c, prev, UserLeftEvent(UserRef{ID: c.userID, Email: c.email}, "left the room"))
	}
	c.trySend(JoinedRoomEvent(p.RoomID))
	if prev != p.RoomID {
		r.hub.ToRoomExcept(c, p.RoomID, UserJoinedEvent(UserRef{ID: c.userID, Email: c.email}))
	}
}

func (r *Router) handleSend(c *Client, data json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == 0 || p.Message == "" {
		c.trySend(ErrorEvent("roomId and message are required"))
		return
	}
	// 必须先显式加入房间才能发言。
	if r.hub.RoomOf(c) != p.RoomID {
		c.trySend(ErrorEvent("You are not in this room"))
		return
	}
	msg, err := r.store.AppendMessage(c.userID, p.RoomID, p.Message, p.Link)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			c.trySend(ErrorEvent("You are not in this room"))
		} else {
			log.Error().Err(err).Uint("user_id", c.userID).Uint("room_id", p.RoomID).Msg("append message")
			c.trySend(ErrorEvent("Failed to send message"))
		}
		return
	}
	metrics.WsMessagesTotal.Inc()
	author := UserRef{ID: c.userID, Email: c.email}
	r.hub.ToRoom(p.RoomID, NewMessageEvent(msg.ID, msg.RoomID, author, msg.Content, msg.Link, msg.CreatedAt))
}

// leave 解除房间绑定并通知同房间的其他连接，未绑定时为空操作。
func (r *Router) leave(c *Client, reason string) {
	prev := r.hub.Unbind(c)
	if prev != 0 {
		r.hub.ToRoom(prev, UserLeftEvent(UserRef{ID: c.userID, Email: c.email}, reason))
	}
}

// Disconnect 处理连接断开：视为隐式 leave，随后销毁会话。
// 不论是显式关闭还是网络异常断开都会走到这里。
func (r *Router) Disconnect(c *Client) {
	roomID, ok := r.hub.Unregister(c)
	if ok {
		log.Info().Uint("user_id", c.userID).Msg("ws disconnected")
		if roomID != 0 {
			r.hub.ToRoom(roomID, UserLeftEvent(UserRef{ID: c.userID, Email: c.email}, "disconnected"))
		}
	}
}
