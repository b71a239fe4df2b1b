package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"github.com/vilanovax/bizbuzz/internal/mailer"
)

type ServerConfig struct {
	Port        string
	Environment string
	JWTSecret   string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	server := ServerConfig{
		Port:        cfg.GetString("server.port"),
		Environment: cfg.GetString("server.environment"),
		JWTSecret:   cfg.GetString("server.jwt_secret"),
	}
	if server.Port == "" {
		server.Port = "8080"
	}
	if server.Environment == "" {
		server.Environment = "local"
	}
	if server.JWTSecret == "" {
		log.Warn().Msg("server.jwt_secret is empty, organizer endpoints will reject all tokens")
	}
	return server
}

// SecureCookies reports whether guest session cookies carry the Secure flag.
// Only local development runs without it.
func (s ServerConfig) SecureCookies() bool {
	return s.Environment != "local"
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	host := cfg.GetString("database.host")
	port := cfg.GetString("database.port")
	user := cfg.GetString("database.user")
	password := cfg.GetString("database.password")
	name := cfg.GetString("database.name")
	sslMode := cfg.GetString("database.ssl_mode")

	if host == "" || user == "" || name == "" {
		return "", nil, nil, fmt.Errorf("database config incomplete: host, user and name are required")
	}
	if port == "" {
		port = "5432"
	}
	if sslMode == "" {
		sslMode = "disable"
	}

	masterDSN := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode,
	)

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: time.Duration(cfg.GetInt("database.conn_max_lifetime_seconds")) * time.Second,
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}

	log.Debug().Str("host", host).Str("db", name).Msg("database config assembled")

	return masterDSN, nil, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rabbit := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rabbit.Url == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit.url is required")
	}
	if rabbit.Exchange == "" {
		rabbit.Exchange = "attendee.notifications"
	}
	if rabbit.Queue == "" {
		rabbit.Queue = "attendee.notifications.email"
	}
	log.Debug().Str("exchange", rabbit.Exchange).Str("queue", rabbit.Queue).Msg("rabbit config assembled")
	return rabbit, nil
}

func BuildSMTPConfig(cfg *config.Config, log *zerolog.Logger) mailer.Config {
	smtp := mailer.Config{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetString("smtp.port"),
		From:     cfg.GetString("smtp.from"),
		Password: cfg.GetString("smtp.password"),
	}
	if smtp.Host == "" {
		log.Warn().Msg("smtp.host is empty, notification emails will fail to send")
	}
	if smtp.Port == "" {
		smtp.Port = "587"
	}
	return smtp
}
