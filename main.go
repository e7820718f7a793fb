// ABOUTME: Entry point for the Resonate voice relay
// ABOUTME: Parses CLI flags and config, then hosts or joins a voice session
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-voice/internal/app"
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/logging"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "resonate-voice",
	Short: "Peer-to-peer voice relay",
	Long: `Resonate Voice - host or join a small voice session on the local network.
Every member gets its own playback channel, so voices mix at the audio device.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVoice()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s v%s\n", version.Product, version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./resonate-voice.yaml or ~/.config/resonate-voice/resonate-voice.yaml)")

	if err := config.RegisterFlags(rootCmd, v); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runVoice() error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logFile, err := logging.Setup(logging.Options{
		File:  cfg.LogFile,
		Level: cfg.LogLevel,
		TUI:   !cfg.NoTUI,
	})
	if err != nil {
		return err
	}
	defer logFile.Close()

	log := logging.For("main")
	log.WithField("name", cfg.Name).Infof("Starting %s v%s", version.Product, version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg).Run(ctx); err != nil {
		log.WithError(err).Error("Session failed")
		return err
	}
	return nil
}
