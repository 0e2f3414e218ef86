package service

import (
	"errors"

	"github.com/100pro-team-sns/100pro-team-sns/internal/auth"
	"github.com/100pro-team-sns/100pro-team-sns/internal/config"
	"github.com/100pro-team-sns/100pro-team-sns/internal/models"

	"gorm.io/gorm"
)

// UserService 封装用户注册与登录的业务逻辑。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// Register 注册新用户。
func (s *UserService) Register(email, password string) (*models.User, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Email: email, PasswordHash: hash}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	Token string
	User  models.User
}

// Login 校验邮箱密码并签发 token。新 token 覆盖写入用户行，旧 token 随之失效。
func (s *UserService) Login(email, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	tok, err := auth.IssueToken(s.db, user.ID, s.cfg.JWTSecret, s.cfg.TokenTTLHours)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: tok, User: user}, nil
}
