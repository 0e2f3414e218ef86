package ws

import (
	"errors"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBStore 是 Store 的 gorm 实现。
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

// AuthorizeJoin 校验房间存在、未过期且用户是成员。
func (s *DBStore) AuthorizeJoin(userID, roomID uint, now time.Time) error {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotAuthorized
		}
		return err
	}
	if !room.Active(now) || !room.HasMember(userID) {
		return ErrNotAuthorized
	}
	return nil
}

// AppendMessage 对房间行加锁后在同一事务内校验并落库。
// stopRoom 对同一行的更新与此处串行，已停止的房间不会再收到消息。
func (s *DBStore) AppendMessage(userID, roomID uint, content string, link *string) (*models.Message, error) {
	msg := &models.Message{RoomID: roomID, UserID: userID, Content: content, Link: link}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAuthorized
			}
			return err
		}
		if !room.Active(time.Now()) || !room.HasMember(userID) {
			return ErrNotAuthorized
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
