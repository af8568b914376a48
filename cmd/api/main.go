package main

import (
	"flag"
	"log"

	"github.com/FraudLens-io/fraudlens/internal/api"
	"github.com/FraudLens-io/fraudlens/internal/archive"
	"github.com/FraudLens-io/fraudlens/internal/config"
	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/payment"
)

const version = "0.1.0"

func initializeAPI(configPath string) (*api.Api, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	var archiver archive.Archiver = archive.NopArchiver{}
	if cfg.Archive.Enabled {
		archiver, err = archive.NewS3Archiver(
			cfg.Archive.Endpoint,
			cfg.Archive.Region,
			cfg.Archive.Bucket,
			cfg.Archive.AccessKeyID,
			cfg.Archive.SecretAccessKey,
		)
		if err != nil {
			return nil, err
		}
	}

	provider := payment.NewStripeClient(cfg)

	return api.NewApi(cfg, store, provider, archiver)
}

func main() {
	configPath := flag.String("config", "app.yml", "Path to configuration file")
	flag.Parse()

	log.Printf("Starting FraudLens API v%s with config: %s", version, *configPath)

	api, err := initializeAPI(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	if err := api.Serve(); err != nil {
		log.Fatal(err)
	}
}
