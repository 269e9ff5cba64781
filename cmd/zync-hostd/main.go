package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/infrastructure/config"
	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/server"
)

func main() {
	var (
		port       = flag.String("port", "", "listen port (overrides PORT)")
		pluginRoot = flag.String("plugins", "", "plugin root directory (overrides PLUGINS_ROOT)")
		dev        = flag.Bool("dev", false, "development logging")
	)
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *pluginRoot != "" {
		cfg.Plugins.Root = *pluginRoot
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log = logging.NewDefault()
	}
	defer log.Sync()

	log.Info("zync plugin host starting",
		zap.String("port", cfg.Server.Port),
		zap.String("plugin_root", cfg.Plugins.Root))

	host := server.New(cfg, log)

	if _, err := os.Stat(cfg.Plugins.Root); err == nil {
		installed, err := host.Store().LoadDir(cfg.Plugins.Root)
		if err != nil {
			log.Error("plugin scan failed", zap.Error(err))
		} else {
			log.Info("plugins loaded", zap.Int("installed", installed))
		}
	} else {
		log.Info("plugin root missing, starting empty",
			zap.String("root", cfg.Plugins.Root))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := host.Run(ctx); err != nil {
		log.Error("host failed", zap.Error(err))
		os.Exit(1)
	}
}
