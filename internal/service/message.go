package service

import (
	"errors"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/models"

	"gorm.io/gorm"
)

// MessageService 封装消息历史查询。
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// MessageDTO 是对外输出的消息数据，字段名与 new_message 事件保持一致。
type MessageDTO struct {
	ID        uint      `json:"id"`
	RoomID    uint      `json:"roomId"`
	UserID    uint      `json:"userId"`
	Message   string    `json:"message"`
	Link      *string   `json:"link"`
	CreatedAt time.Time `json:"createdAt"`
}

// History 返回房间的全部消息，按创建顺序升序。
// 只有房间成员可以读取；历史的可见性不受房间过期影响。
func (s *MessageService) History(roomID, requesterID uint) ([]MessageDTO, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if !room.HasMember(requesterID) {
		return nil, ErrNotRoomMember
	}

	var msgs []models.Message
	if err := s.db.Where("room_id = ?", roomID).Order("id asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			ID:        m.ID,
			RoomID:    m.RoomID,
			UserID:    m.UserID,
			Message:   m.Content,
			Link:      m.Link,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
