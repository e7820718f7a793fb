// ABOUTME: Entry point for a dedicated Resonate voice hub
// ABOUTME: Relays a session between members without playing or capturing audio itself
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/logging"
	"github.com/Resonate-Protocol/resonate-voice/internal/session"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const statsInterval = 30 * time.Second

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "resonate-hub",
	Short:        "Dedicated voice session hub",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHub()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./resonate-voice.yaml or ~/.config/resonate-voice/resonate-voice.yaml)")

	if err := config.RegisterHubFlags(rootCmd, v); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHub() error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logFile, err := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer logFile.Close()

	log := logging.For("main")
	log.WithFields(logrus.Fields{
		"name": cfg.Name,
		"port": cfg.Port,
	}).Infof("Starting %s hub v%s", version.Product, version.Version)
	log.Info("Press Ctrl-C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := session.NewHub(session.HubConfig{
		Port:       cfg.Port,
		Name:       cfg.Name,
		Capacity:   cfg.Capacity,
		Format:     cfg.Format(),
		EnableMDNS: cfg.MDNS,
	})
	if err := hub.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutdown signal received")
			hub.Stop()
			return nil
		case <-ticker.C:
			stats := hub.Stats()
			log.WithFields(logrus.Fields{
				"members": stats.Members,
				"relayed": stats.Relayed,
				"dropped": stats.Dropped,
			}).Info("Hub status")
		}
	}
}
