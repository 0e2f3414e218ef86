package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/100pro-team-sns/100pro-team-sns/internal/auth"
	"github.com/100pro-team-sns/100pro-team-sns/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc  *service.UserService
	roomSvc  *service.RoomService
	msgSvc   *service.MessageService
	trainSvc *service.TrainService
}

func NewHandler(userSvc *service.UserService, roomSvc *service.RoomService, msgSvc *service.MessageService, trainSvc *service.TrainService) *Handler {
	return &Handler{userSvc: userSvc, roomSvc: roomSvc, msgSvc: msgSvc, trainSvc: trainSvc}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid password"})
		return
	}
	user, err := h.userSvc.Register(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "email": user.Email})
}

// Login 处理用户登录请求，签发的 token 会覆盖该用户之前的 token。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	result, err := h.userSvc.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user":  gin.H{"id": result.User.ID, "email": result.User.Email},
	})
}

// CreateMatch 处理匹配服务发起的建房请求。
func (h *Handler) CreateMatch(c *gin.Context) {
	var req struct {
		User1ID       uint `json:"user_id_1"`
		User2ID       uint `json:"user_id_2"`
		DurationHours int  `json:"duration_hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	room, err := h.roomSvc.CreateMatch(req.User1ID, req.User2ID, req.DurationHours)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			log.Error().Err(err).Uint("user_id_1", req.User1ID).Uint("user_id_2", req.User2ID).Msg("create match")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create match"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": gin.H{
		"id":         room.ID,
		"user_id_1":  room.User1ID,
		"user_id_2":  room.User2ID,
		"expired_at": room.ExpiredAt,
	}})
}

// StopRoom 处理成员主动终止房间的请求。
func (h *Handler) StopRoom(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room id"})
		return
	}
	err = h.roomSvc.StopMatch(uint(roomID), auth.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		case errors.Is(err, service.ErrNotRoomMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
		default:
			log.Error().Err(err).Int("room_id", roomID).Msg("stop room")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop room"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Match stopped"})
}

// ListChats 返回当前用户参与的全部房间摘要。
func (h *Handler) ListChats(c *gin.Context) {
	rooms, err := h.roomSvc.ListForUser(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("list chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// ListMessages 返回房间的完整消息历史，仅限成员。
func (h *Handler) ListMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room id"})
		return
	}
	msgs, err := h.msgSvc.History(uint(roomID), auth.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		case errors.Is(err, service.ErrNotRoomMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
		default:
			log.Error().Err(err).Int("room_id", roomID).Msg("list messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		}
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// JoinTrain 处理客户端上报的乘车事件。
func (h *Handler) JoinTrain(c *gin.Context) {
	var req struct {
		TrainID string `json:"train_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TrainID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "train_id is required"})
		return
	}
	exp, err := h.trainSvc.Join(auth.GetUserID(c), req.TrainID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("join train")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join train"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully joined train", "train_id": req.TrainID, "expired_at": exp})
}

// LeaveTrain 处理客户端上报的下车事件。
func (h *Handler) LeaveTrain(c *gin.Context) {
	if err := h.trainSvc.Leave(auth.GetUserID(c)); err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("leave train")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave train"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully left train"})
}

// QueueAdd 接收列车检测服务上报的乘车记录，凑齐两人即建房。
func (h *Handler) QueueAdd(c *gin.Context) {
	var req struct {
		UserID  uint   `json:"user_id"`
		Line    string `json:"line"`
		TrainID string `json:"train_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	room, err := h.trainSvc.Enqueue(req.UserID, req.TrainID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and train_id are required"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			log.Error().Err(err).Uint("user_id", req.UserID).Str("train_id", req.TrainID).Msg("queue add")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add to queue"})
		}
		return
	}
	if room == nil {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "room": gin.H{
		"id":         room.ID,
		"user_id_1":  room.User1ID,
		"user_id_2":  room.User2ID,
		"expired_at": room.ExpiredAt,
	}})
}
