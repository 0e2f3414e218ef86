package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port               string
	DatabaseDSN        string
	JWTSecret          string
	Env                string
	ClientOrigin       string
	TokenTTLHours      int
	MatchDurationHours int
	TrainTTLMinutes    int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:               getenv("APP_PORT", "3000"),
		DatabaseDSN:        getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=teamsns port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:          getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                getenv("APP_ENV", "dev"),
		ClientOrigin:       getenv("CLIENT_ORIGIN", "http://localhost:5173"),
		TokenTTLHours:      getenvInt("TOKEN_TTL_HOURS", 24),
		MatchDurationHours: getenvInt("MATCH_DURATION_HOURS", 24),
		TrainTTLMinutes:    getenvInt("TRAIN_TTL_MINUTES", 60),
	}
}

// Validate 校验配置，生产环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret is not allowed outside dev")
	}
	return nil
}
