package service

import (
	"errors"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/metrics"
	"github.com/100pro-team-sns/100pro-team-sns/internal/models"
	"github.com/100pro-team-sns/100pro-team-sns/internal/ws"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomService 封装房间生命周期：创建（匹配）、停止、列表查询。
// 过期只在每次校验和查询时惰性判断，没有后台清理任务。
type RoomService struct {
	db  *gorm.DB
	hub *ws.Hub
}

func NewRoomService(db *gorm.DB, hub *ws.Hub) *RoomService {
	return &RoomService{db: db, hub: hub}
}

// CreateMatch 在两名用户之间创建限时房间，并向所有在线连接广播 match_created。
// 此时双方都尚未加入房间，因此广播必须是进程级而非房间级。
func (s *RoomService) CreateMatch(user1ID, user2ID uint, durationHours int) (*models.Room, error) {
	if user1ID == 0 || user2ID == 0 || user1ID == user2ID || durationHours <= 0 {
		return nil, ErrValidation
	}
	var users []models.User
	if err := s.db.Where("id IN ?", []uint{user1ID, user2ID}).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) != 2 {
		return nil, ErrUserNotFound
	}
	room := models.Room{
		User1ID:   user1ID,
		User2ID:   user2ID,
		ExpiredAt: time.Now().Add(time.Duration(durationHours) * time.Hour),
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	metrics.MatchesCreatedTotal.Inc()

	refs := make(map[uint]ws.UserRef, 2)
	for _, u := range users {
		refs[u.ID] = ws.UserRef{ID: u.ID, Email: u.Email}
	}
	s.hub.ToAll(ws.MatchCreatedEvent(room.ID, refs[user1ID], refs[user2ID], room.ExpiredAt))
	return &room, nil
}

// StopMatch 把房间的过期时间提前到当前时刻并通知房间内的连接。
// 只有成员可以停止，已过期或不存在的房间按未找到处理。
func (s *RoomService) StopMatch(roomID, requesterID uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		now := time.Now()
		if !room.Active(now) {
			return ErrRoomNotFound
		}
		if !room.HasMember(requesterID) {
			return ErrNotRoomMember
		}
		return tx.Model(&room).Update("expired_at", now).Error
	})
	if err != nil {
		return err
	}
	metrics.RoomsStoppedTotal.Inc()
	s.hub.ToRoom(roomID, ws.MatchStoppedEvent(roomID, requesterID))
	return nil
}

// RoomSummary 是 /api/chats 返回的房间摘要。
type RoomSummary struct {
	RoomID    uint         `json:"roomId"`
	OtherUser ws.UserRef   `json:"otherUser"`
	IsExpired bool         `json:"isExpired"`
	Last      *LastMessage `json:"lastMessage"`
}

type LastMessage struct {
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListForUser 返回用户参与的全部房间，带对方信息、过期标记和最近一条消息。
// 历史在过期后依然可见。
func (s *RoomService) ListForUser(userID uint) ([]RoomSummary, error) {
	var rooms []models.Room
	if err := s.db.Where("user_id_1 = ? OR user_id_2 = ?", userID, userID).
		Order("id desc").Find(&rooms).Error; err != nil {
		return nil, err
	}

	// 批量获取对方用户信息
	otherIDs := make([]uint, 0, len(rooms))
	seen := make(map[uint]struct{}, len(rooms))
	for _, r := range rooms {
		id := r.OtherMember(userID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		otherIDs = append(otherIDs, id)
	}
	emails := make(map[uint]string, len(otherIDs))
	if len(otherIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "email").Where("id IN ?", otherIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			emails[u.ID] = u.Email
		}
	}

	now := time.Now()
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		otherID := r.OtherMember(userID)
		summary := RoomSummary{
			RoomID:    r.ID,
			OtherUser: ws.UserRef{ID: otherID, Email: emails[otherID]},
			IsExpired: !r.Active(now),
		}
		var last models.Message
		err := s.db.Where("room_id = ?", r.ID).Order("id desc").First(&last).Error
		if err == nil {
			summary.Last = &LastMessage{Context: last.Content, CreatedAt: last.CreatedAt}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}
