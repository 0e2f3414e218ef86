package service

import (
	"errors"
	"sync"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/config"
	"github.com/100pro-team-sns/100pro-team-sns/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// TrainService 维护用户与列车的绑定，并把列车检测服务上报的乘车事件
// 配对成新房间。列车检测本身由外部服务完成，这里只消费其结果。
type TrainService struct {
	db    *gorm.DB
	cfg   config.Config
	rooms *RoomService

	mu      sync.Mutex
	waiting map[string]uint // trainID -> 等待配对的用户
}

func NewTrainService(db *gorm.DB, cfg config.Config, rooms *RoomService) *TrainService {
	return &TrainService{db: db, cfg: cfg, rooms: rooms, waiting: make(map[string]uint)}
}

// Join 把用户绑定到列车，绑定带有 TTL，超时后视为已下车。
func (s *TrainService) Join(userID uint, trainID string) (time.Time, error) {
	exp := time.Now().Add(time.Duration(s.cfg.TrainTTLMinutes) * time.Minute)
	err := s.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"train_id": trainID, "train_expired_at": exp}).Error
	if err != nil {
		return time.Time{}, err
	}
	return exp, nil
}

// Leave 解除用户的列车绑定。
func (s *TrainService) Leave(userID uint) error {
	return s.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"train_id": nil, "train_expired_at": nil}).Error
}

// Enqueue 接收检测服务上报的 (用户, 列车)。同一列车上已有另一名等待用户时
// 立即创建房间，否则把该用户记为等待。返回创建的房间，未配对时为 nil。
func (s *TrainService) Enqueue(userID uint, trainID string) (*models.Room, error) {
	if userID == 0 || trainID == "" {
		return nil, ErrValidation
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.mu.Lock()
	peer, ok := s.waiting[trainID]
	if ok && peer != userID {
		delete(s.waiting, trainID)
	} else {
		s.waiting[trainID] = userID
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()

	room, err := s.rooms.CreateMatch(peer, userID, s.cfg.MatchDurationHours)
	if err != nil {
		// 配对失败时把对方放回队列，等待下一次上报。
		s.mu.Lock()
		if _, exists := s.waiting[trainID]; !exists {
			s.waiting[trainID] = peer
		}
		s.mu.Unlock()
		return nil, err
	}
	log.Info().Uint("room_id", room.ID).Str("train_id", trainID).
		Uint("user_1", peer).Uint("user_2", userID).Msg("matched")
	return room, nil
}
