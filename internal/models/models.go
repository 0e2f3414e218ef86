package models

import "time"

type User struct {
	ID             uint    `gorm:"primaryKey"`
	Email          string  `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash   string  `gorm:"not null"`
	Token          *string `gorm:"uniqueIndex;size:255"`
	TokenExpiredAt *time.Time
	TrainID        *string `gorm:"size:255"`
	TrainExpiredAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Room 表示两名用户之间的限时聊天房间，过期时间只会提前不会延后。
type Room struct {
	ID        uint      `gorm:"primaryKey"`
	User1ID   uint      `gorm:"column:user_id_1;index;not null"`
	User2ID   uint      `gorm:"column:user_id_2;index;not null"`
	ExpiredAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

// Active 判断房间在给定时刻是否仍然有效（惰性过期）。
func (r *Room) Active(now time.Time) bool {
	return now.Before(r.ExpiredAt)
}

// HasMember 判断用户是否为房间成员。
func (r *Room) HasMember(userID uint) bool {
	return userID == r.User1ID || userID == r.User2ID
}

// OtherMember 返回房间里另一个成员的 ID。
func (r *Room) OtherMember(userID uint) uint {
	if userID == r.User1ID {
		return r.User2ID
	}
	return r.User1ID
}

type Message struct {
	ID        uint    `gorm:"primaryKey"`
	RoomID    uint    `gorm:"index:idx_msg_room_id;not null"`
	UserID    uint    `gorm:"index;not null"`
	Content   string  `gorm:"type:text;not null"`
	Link      *string `gorm:"size:255"`
	CreatedAt time.Time
}
