package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func GenerateToken(userID uint, secret string, ttlHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// IssueToken 签发访问 token 并覆盖写入用户行，旧 token 随覆盖而失效。
func IssueToken(db *gorm.DB, userID uint, secret string, ttlHours int) (string, error) {
	tok, err := GenerateToken(userID, secret, ttlHours)
	if err != nil {
		return "", err
	}
	exp := time.Now().Add(time.Duration(ttlHours) * time.Hour)
	err = db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"token": tok, "token_expired_at": exp}).Error
	if err != nil {
		return "", err
	}
	return tok, nil
}

// VerifyToken 校验 token：签名有效且与用户行上当前 token 一致、未过期。
func VerifyToken(db *gorm.DB, tokenStr, secret string) (*models.User, error) {
	claims, err := ParseToken(tokenStr, secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var user models.User
	err = db.Where("id = ? AND token = ? AND token_expired_at > ?", claims.UserID, tokenStr, time.Now()).
		First(&user).Error
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// Middleware 鉴权中间件：缺少 token 返回 401，无效或过期返回 403。
func Middleware(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		user, err := VerifyToken(db, tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set("userID", user.ID)
		c.Set("user", *user)
		c.Next()
	}
}

func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get("userID"); ok {
		if id, ok2 := v.(uint); ok2 {
			return id
		}
	}
	return 0
}

func GetUser(c *gin.Context) (models.User, bool) {
	if v, ok := c.Get("user"); ok {
		if u, ok2 := v.(models.User); ok2 {
			return u, true
		}
	}
	return models.User{}, false
}
