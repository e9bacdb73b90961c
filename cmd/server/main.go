package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delivery-service/internal/api"
	"delivery-service/internal/audit"
	"delivery-service/internal/config"
	"delivery-service/internal/db"
	"delivery-service/internal/db/queries"
	"delivery-service/internal/queue"
	"delivery-service/internal/rates"

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

	// Кэш курса опционален: без него пайплайн продолжает работать
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

	// Подключаемся к брокеру очередей
	conn, ch, err := queue.Connect(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("Failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	defer ch.Close()

	publisher, err := queue.NewPublisher(ch)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}

	// Хранилище аудита опционально
	var recorder audit.Recorder
	var stats audit.StatsInterface
	if cfg.Mongo.URL != "" {
		mongo, err := audit.Connect(context.Background(), cfg.Mongo.URL, cfg.Mongo.DBName)
		if err != nil {
			log.Printf("Mongo unavailable, audit disabled: %v", err)
		} else {
			defer func() { _ = mongo.Close(context.Background()) }()
			recorder = mongo
			stats = mongo
		}
	}

	// Настраиваем маршруты
	router := api.SetupRouter(api.Deps{
		Parcels:   queries.NewParcelQueries(database),
		Publisher: publisher,
		Rates:     rates.NewProvider(rateCache, &cfg.Rates),
		Audit:     recorder,
		Stats:     stats,
	})

	// Настраиваем HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Запускаем сервер в отдельной горутине
	go func() {
		log.Printf("Server is starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Настраиваем корректное завершение работы
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Даем 10 секунд на завершение текущих запросов
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}
