package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Medi-Pal/medipal/internal/app"
	"github.com/Medi-Pal/medipal/internal/cli"
	"github.com/Medi-Pal/medipal/internal/config"
	"github.com/Medi-Pal/medipal/internal/logging"
	"github.com/Medi-Pal/medipal/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintExtendedHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	if err := run(); err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "help", "--help", "-h":
		cli.PrintExtendedHelp(os.Stdout)
		return nil
	case "version", "--version", "-v":
		fmt.Printf("MediPal version %s\n", version)
		return nil
	case "config":
		return cli.HandleConfigCommand(args, *configPath, *dataDir, os.Stdout)
	}

	application := initApp()
	defer application.Store.Close()
	defer application.Logger.Sync()

	if command == "serve" {
		return application.RunServer()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.Start()
	defer application.Close()

	switch command {
	case "login":
		return cli.HandleLoginCommand(ctx, application, args, os.Stdin, os.Stdout)
	case "logout":
		return cli.HandleLogoutCommand(ctx, application, os.Stdout)
	case "sync":
		return cli.HandleSyncCommand(ctx, application, os.Stdout)
	case "times":
		return cli.HandleTimesCommand(application, args, os.Stdout)
	case "status":
		return cli.HandleStatusCommand(ctx, application, os.Stdout)
	case "restore":
		return cli.HandleRestoreCommand(ctx, application, os.Stdout)
	case "contacts":
		return cli.HandleContactsCommand(ctx, application, args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		cli.PrintExtendedHelp(os.Stderr)
		return cli.ErrUsage
	}
}

func initApp() *app.App {
	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Debug("Starting MediPal",
		zap.String("version", version),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath(cfg.Storage.DataDir)
	}

	return app.New(cfg, st, logger, app.Options{
		ConfigPath: path,
		LogLevel:   level,
		Version:    version,
	})
}
