package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"delivery-service/internal/audit"
	"delivery-service/internal/config"
	"delivery-service/internal/db"
	"delivery-service/internal/db/queries"
	"delivery-service/internal/queue"
	"delivery-service/internal/rates"
	"delivery-service/internal/worker"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Устанавливаем соединение с базой данных
	database, err := db.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Кэш курса опционален
	var rateCache rates.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Printf("Redis unavailable, rate cache disabled: %v", err)
		} else {
			rateCache = rates.NewRedisCache(rdb)
		}
	}

	// Хранилище аудита опционально
	var recorder audit.Recorder
	if cfg.Mongo.URL != "" {
		mongo, err := audit.Connect(context.Background(), cfg.Mongo.URL, cfg.Mongo.DBName)
		if err != nil {
			log.Printf("Mongo unavailable, audit disabled: %v", err)
		} else {
			defer func() { _ = mongo.Close(context.Background()) }()
			recorder = mongo
		}
	}

	// Подключаемся к брокеру очередей
	conn, ch, err := queue.Connect(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("Failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	defer ch.Close()

	publisher, err := queue.NewPublisher(ch)
	if err != nil {
		log.Fatalf("Failed to declare queue: %v", err)
	}

	w := worker.New(
		queries.NewParcelQueries(database),
		rates.NewProvider(rateCache, &cfg.Rates),
		recorder,
		cfg.Worker.MaxAttempts,
	)

	// Останавливаемся по сигналу, дорабатывая текущее сообщение
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Worker is starting")
	if err := w.Run(ctx, ch, publisher); err != nil {
		log.Fatalf("Worker stopped with error: %v", err)
	}

	log.Println("Worker exited properly")
}
