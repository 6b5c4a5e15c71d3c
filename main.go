package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"approval-service/internal/config"
	"approval-service/internal/publisher"
	"approval-service/internal/repository"
	"approval-service/internal/server"
	"approval-service/internal/service"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.Info("Starting database migration...")
	m, err := migrate.New(cfg.DB.MigrationsPath, cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not create migrate instance")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithField("error", err).Fatal("Could not apply migration")
	}
	log.Info("Database migration finished successfully.")

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not connect to the database")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.WithField("error", err).Fatal("Could not ping the database")
	}
	log.Info("Successfully connected to the PostgreSQL database.")

	// Messaging
	var (
		notifier       service.Notifier = publisher.LogNotifier{}
		auditPublisher service.AuditPublisher
	)
	if cfg.Kafka.Enabled() {
		producer, err := publisher.NewProducer(cfg.Kafka.BootstrapServers)
		if err != nil {
			log.WithError(err).Fatal("Could not create Kafka producer")
		}
		defer producer.Close()

		notifier = publisher.NewNotificationPublisher(producer, cfg.Kafka.NotificationTopic)
		auditPublisher = publisher.NewAuditPublisher(producer, cfg.Kafka.AuditTopic)
		log.WithField("bootstrap_servers", cfg.Kafka.BootstrapServers).Info("Publishing notifications and audit events to Kafka")
	} else {
		log.Warn("KAFKA_BOOTSTRAP_SERVERS not set; notifications will only be logged")
	}

	// Repositories
	approvalRepository := repository.NewPostgresApprovalRepository(db)
	auditRepository := repository.NewPostgresAuditRepository(db)
	directoryRepository := repository.NewPostgresDirectoryRepository(db)
	entityRepository := repository.NewPostgresEntityRepository(db)

	// Engine
	dispatcher := service.NewNotificationDispatcher(notifier, directoryRepository)
	executor := service.NewDefaultActionExecutor(entityRepository, dispatcher)
	auditLogger := service.NewAuditLogger(auditRepository, auditPublisher)
	approvalService := service.NewApprovalService(approvalRepository, auditLogger, directoryRepository, dispatcher, executor)

	srv := server.NewServer(approvalService, db)

	e := echo.New()
	e.HideBanner = true
	srv.RegisterRoutes(e)

	go func() {
		log.WithField("port", cfg.HTTP.Port).Info("Approval service is starting with Echo")
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("Echo server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down approval service...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Echo server shutdown failed")
	}
}
