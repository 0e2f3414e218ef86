package ws

import (
	"encoding/json"
	"time"
)

// 客户端与服务端之间的具名事件，沿用既有前端的事件协议。
const (
	EvtJoinRoom    = "join_room"
	EvtSendMessage = "send_message"
	EvtLeaveRoom   = "leave_room"

	EvtJoinedRoom   = "joined_room"
	EvtUserJoined   = "user_joined"
	EvtUserLeft     = "user_left"
	EvtNewMessage   = "new_message"
	EvtMatchCreated = "match_created"
	EvtMatchStopped = "match_stopped"
	EvtError        = "error"
)

type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID uint `json:"roomId"`
}

type sendPayload struct {
	RoomID  uint    `json:"roomId"`
	Message string  `json:"message"`
	Link    *string `json:"link"`
}

type UserRef struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// envelope 将事件名和负载编码为统一的出站帧。
func envelope(event string, data interface{}) []byte {
	b, _ := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{Event: event, Data: data})
	return b
}

func ErrorEvent(message string) []byte {
	return envelope(EvtError, map[string]string{"message": message})
}

func JoinedRoomEvent(roomID uint) []byte {
	return envelope(EvtJoinedRoom, map[string]interface{}{
		"roomId":  roomID,
		"message": "Successfully joined room",
	})
}

func UserJoinedEvent(user UserRef) []byte {
	return envelope(EvtUserJoined, map[string]interface{}{
		"userId":    user.ID,
		"userEmail": user.Email,
		"message":   user.Email + " joined the room",
	})
}

func UserLeftEvent(user UserRef, reason string) []byte {
	return envelope(EvtUserLeft, map[string]interface{}{
		"userId":    user.ID,
		"userEmail": user.Email,
		"message":   user.Email + " " + reason,
	})
}

func NewMessageEvent(id, roomID uint, author UserRef, message string, link *string, createdAt time.Time) []byte {
	return envelope(EvtNewMessage, map[string]interface{}{
		"id":        id,
		"roomId":    roomID,
		"userId":    author.ID,
		"message":   message,
		"link":      link,
		"createdAt": createdAt,
		"user":      author,
	})
}

// MatchCreatedEvent 是进程级广播：两名被匹配的用户此时都尚未加入房间。
func MatchCreatedEvent(roomID uint, user1, user2 UserRef, expiredAt time.Time) []byte {
	return envelope(EvtMatchCreated, map[string]interface{}{
		"roomId":    roomID,
		"user1":     user1,
		"user2":     user2,
		"expiredAt": expiredAt,
	})
}

func MatchStoppedEvent(roomID, stoppedBy uint) []byte {
	return envelope(EvtMatchStopped, map[string]interface{}{
		"roomId":    roomID,
		"stoppedBy": stoppedBy,
		"message":   "Match has been stopped",
	})
}
