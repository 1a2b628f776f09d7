package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	VaultConfig      *VaultConfig
	ResolverConfig   *ResolverConfig
	CloudflareConfig *CloudflareConfig
	MtaConfig        *MtaConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		VaultConfig:      &VaultConfig{},
		ResolverConfig:   &ResolverConfig{},
		CloudflareConfig: &CloudflareConfig{},
		MtaConfig:        &MtaConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading dnsguard config: %v", err)
	}

	return config, nil
}
