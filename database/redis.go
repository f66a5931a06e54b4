package database

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var Redis *redis.Client

func ConnectRedis() error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logrus.Warn("REDIS_ADDR not set, using default localhost")
		addr = "127.0.0.1:6379"
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Redis.Ping(ctx).Err(); err != nil {
		return err
	}

	logrus.Info("Connected to Redis successfully")
	return nil
}

func DisconnectRedis() error {
	if Redis == nil {
		return nil
	}
	return Redis.Close()
}
