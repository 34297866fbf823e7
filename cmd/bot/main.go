package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/iamvkosarev/webex-ai-bot/config"
	"github.com/iamvkosarev/webex-ai-bot/internal/app"
)

func main() {
	// Load .env file if it exists.
	godotenv.Load()

	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := app.Run(cfg); err != nil {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
}
