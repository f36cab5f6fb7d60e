package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"dm-go/internal/chattypes"
	"dm-go/internal/config"
	"dm-go/internal/handlers/chatserver"
	appKafka "dm-go/internal/kafka"
	"dm-go/internal/services"
	"dm-go/internal/storage"
	"dm-go/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Chat server configuration loaded.")

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Chat server database connection established.")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("Failed to migrate database tables: %v", err)
	}

	// origin identifies this relay instance on the message feed so the feed
	// consumer can skip events this instance already delivered locally.
	origin := uuid.New().String()

	var feed chattypes.FeedPublisher
	var producer appKafka.MessageProducer
	if cfg.Kafka.Enabled {
		producer, err = appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %v", err)
		}
		defer producer.Close()
		feed = appKafka.NewFeedPublisher(producer, cfg.Kafka)
		log.Println("Kafka message feed producer initialized.")
	} else {
		log.Println("Kafka disabled; running without the message feed.")
	}

	msgRepo := storage.NewGormMessageRepository(db)

	hub := websocket.NewHub()
	offlineBuffer := services.NewOfflineBuffer(cfg.Relay.OfflineQueueSize)
	dispatchService := services.NewDispatchService(msgRepo, hub, offlineBuffer, feed, origin, cfg.Relay)
	historyService := services.NewHistoryService(msgRepo, cfg.Relay)

	wsHandler := chatserver.NewWebSocketHandler(hub, dispatchService, historyService, cfg)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	if cfg.Kafka.Enabled {
		feedConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			log.Fatalf("Failed to create Kafka feed consumer: %v", err)
		}
		defer feedConsumer.Close()

		// Each instance consumes the full feed under its own group so a
		// recipient connected here receives messages persisted elsewhere.
		feedGroup := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, origin)
		go func() {
			err := feedConsumer.Consume(consumerCtx, []string{cfg.Kafka.MessageFeedTopic}, feedGroup,
				func(ctx context.Context, kafkaMsg *confluentKafka.Message) error {
					var event chattypes.MessageFeedEvent
					if err := json.Unmarshal(kafkaMsg.Value, &event); err != nil {
						log.Printf("Dropping malformed feed event: %v", err)
						return nil
					}
					if event.Origin == origin {
						return nil // already delivered locally
					}
					// The origin instance owns the row's delivered flag, so a
					// feed delivery is not confirmed here; the recipient's
					// next reconnect may re-send it and clients dedup by id.
					hub.Deliver(event.RecipientID, event.Message)
					return nil
				})
			if err != nil {
				log.Printf("Kafka feed consumer stopped with error: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        mux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("Chat server listening on %s, WebSocket path %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Chat server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Chat server shutting down...")

	cancelConsumer()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Chat server shutdown failed: %v", err)
	}
	log.Println("Chat server stopped.")
}
