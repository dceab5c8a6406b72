package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/auth"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/cache"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/config"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/relay"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	var presence cache.PresenceCache
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// Presence survives restarts only with redis; the hub itself does
		// not need it, so run degraded rather than refuse to start.
		log.Printf("redis unavailable, presence cache disabled: %v", err)
	} else {
		presence = cache.NewRedisPresence(rdb)
	}
	defer rdb.Close()

	var dispatcher *relay.Dispatcher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kafkaCfg := sarama.NewConfig()
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("kafka connect failed: %v", err)
		}
		defer producer.Close()
		dispatcher = relay.NewDispatcher(producer, cfg.Kafka.Topic, relay.Options{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  time.Second,
		})
		defer dispatcher.Close()
	}

	hub := ws.NewHub()
	manager := ws.NewManager(hub, auth.NewJWTVerifier(), presence, dispatcher)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	collab := r.Group("/collab")
	collab.GET("/ws", manager.WebSocketConnect)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	addr := fmt.Sprintf(":%d", cfg.Running.Port)
	log.Printf("collab server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
