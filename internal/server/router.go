package server

import (
	"net/http"
	"time"

	"github.com/100pro-team-sns/100pro-team-sns/internal/auth"
	"github.com/100pro-team-sns/100pro-team-sns/internal/config"
	"github.com/100pro-team-sns/100pro-team-sns/internal/metrics"
	"github.com/100pro-team-sns/100pro-team-sns/internal/mw"
	"github.com/100pro-team-sns/100pro-team-sns/internal/service"
	"github.com/100pro-team-sns/100pro-team-sns/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.ClientOrigin))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	userSvc := service.NewUserService(db, cfg)
	roomSvc := service.NewRoomService(db, hub)
	msgSvc := service.NewMessageService(db)
	trainSvc := service.NewTrainService(db, cfg, roomSvc)
	h := NewHandler(userSvc, roomSvc, msgSvc, trainSvc)
	router := ws.NewRouter(hub, ws.NewDBStore(db))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	// 下面两个端点由配套的匹配/检测服务调用，不走用户鉴权。
	api.POST("/match", h.CreateMatch)
	api.POST("/queue/add", h.QueueAdd)

	authed := api.Group("")
	authed.Use(auth.Middleware(db, cfg.JWTSecret))
	authed.POST("/train/join", h.JoinTrain)
	authed.POST("/train/leave", h.LeaveTrain)
	authed.POST("/rooms/:id/stop", h.StopRoom)
	authed.GET("/chats", h.ListChats)
	authed.GET("/chats/:id/messages", h.ListMessages)

	r.GET("/ws", ws.Serve(hub, router, db, cfg))
	return r
}
