package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/tracing"
)

type Config struct {
	AppConfig         *AppConfig
	Logger            *logger.Config
	Tracing           *tracing.JaegerConfig
	DatabaseConfig    *DatabaseConfig
	BlobStorageConfig *BlobStorageConfig
	SyncConfig        *SyncConfig
	RabbitConfig      *RabbitConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:         &AppConfig{},
		Logger:            &logger.Config{},
		Tracing:           &tracing.JaegerConfig{},
		DatabaseConfig:    &DatabaseConfig{},
		BlobStorageConfig: &BlobStorageConfig{},
		SyncConfig:        &SyncConfig{},
		RabbitConfig:      &RabbitConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	return config, nil
}
