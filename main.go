package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/stealthguard/anonycore/cmd"
	"github.com/stealthguard/anonycore/internal/config"
	"github.com/stealthguard/anonycore/internal/logger"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Get().LogLevel, config.Get().LogFormat)

	ctx := context.Background()
	rootCmd := cmd.NewRootCommand(version, commit, date)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
