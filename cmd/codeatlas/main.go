package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeatlas/codeatlas/internal/config"
	"github.com/codeatlas/codeatlas/internal/store"
	"github.com/codeatlas/codeatlas/internal/tools"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "codeatlas.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Println("codeatlas", version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// Logs go to stderr; stdout carries the MCP stdio transport.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config err=%v", err)
	}

	ctx := context.Background()
	s, err := store.New(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
	if err != nil {
		log.Fatalf("store open err=%v", err)
	}

	srv := tools.NewServer(s, cfg)

	runErr := srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
	srv.Shutdown()
	s.Close()
	if runErr != nil {
		log.Fatalf("server err=%v", runErr)
	}
}
