package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/vilanovax/bizbuzz/cmd/buildCFG"
	"github.com/vilanovax/bizbuzz/internal/api/api"
	"github.com/vilanovax/bizbuzz/internal/consumerWorker"
	"github.com/vilanovax/bizbuzz/internal/notifier"
	"github.com/vilanovax/bizbuzz/internal/rabbit"
	"github.com/vilanovax/bizbuzz/internal/repo"
	"github.com/vilanovax/bizbuzz/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, "migrations/postgres")
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	smtpCfg := buildCFG.BuildSMTPConfig(cfg, &log)
	reader := consumerWorker.NewReader(rmq, smtpCfg)
	go reader.Start(workerCtx)

	notify := notifier.NewRabbit(rmq, &log)
	serviceInstance := service.NewService(repository, &log, notify, serverCfg.SecureCookies())
	app := api.NewRouters(&api.Routers{
		Service:   serviceInstance,
		JWTSecret: serverCfg.JWTSecret,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := app.Run(":" + serverCfg.Port); err != nil {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	cancelWorkers()
	reader.Stop()

	log.Info().Msg("Shutdown complete")
}
