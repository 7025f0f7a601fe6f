package main

import (
	"context"
	"log"

	"github.com/evoapps/evotrees/internal/app"
	"github.com/evoapps/evotrees/internal/config"
	"github.com/evoapps/evotrees/internal/server"
)

func main() {
	cfg, err := config.LoadEnv(config.DefaultPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close(ctx)

	if err := a.Importer.BuildSchema(ctx); err != nil {
		a.Logger.WithError(err).Fatal("Failed to build schema")
	}

	srv := server.NewServer(a)
	r := srv.SetupRouter()

	a.Logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		a.Logger.Fatal(err)
	}
}
