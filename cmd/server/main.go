package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chat/internal/config"
	"chat/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr         string
		relayAddr    string
		pingInterval time.Duration
		pongTimeout  time.Duration
		relayTTL     time.Duration
		rate         float64
		burst        int
		configPath   string
	)

	cmd := &cobra.Command{
		Use:   "chat-server",
		Short: "Run the chat control-plane and file-transfer relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.DefaultConfig()

			if configPath != "" {
				file, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if err := applyFile(&cfg, file); err != nil {
					return err
				}
			}

			// Flags explicitly set on the command line win over the config
			// file and the defaults.
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.ControlAddr = addr
			}
			if flags.Changed("relay-addr") {
				cfg.RelayAddr = relayAddr
			}
			if flags.Changed("ping-interval") {
				cfg.PingInterval = pingInterval
			}
			if flags.Changed("pong-timeout") {
				cfg.PongTimeout = pongTimeout
			}
			if flags.Changed("relay-deadline") {
				cfg.RelayTTL = relayTTL
			}
			if flags.Changed("rate") {
				cfg.RateLimit = rate
			}
			if flags.Changed("burst") {
				cfg.RateBurst = burst
			}

			srv := server.New(cfg)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-quit
				log.Println("[server] shutting down…")
				srv.Shutdown()
			}()

			if err := srv.ListenAndServe(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	def := server.DefaultConfig()
	cmd.Flags().StringVar(&addr, "addr", def.ControlAddr, "control-channel listen address")
	cmd.Flags().StringVar(&relayAddr, "relay-addr", def.RelayAddr, "file-transfer relay listen address")
	cmd.Flags().DurationVar(&pingInterval, "ping-interval", def.PingInterval, "interval between PINGs once a session has logged in")
	cmd.Flags().DurationVar(&pongTimeout, "pong-timeout", def.PongTimeout, "how long to wait for PONG before evicting")
	cmd.Flags().DurationVar(&relayTTL, "relay-deadline", def.RelayTTL, "how long after a transfer is accepted its relay half-sessions may wait for each other")
	cmd.Flags().Float64Var(&rate, "rate", def.RateLimit, "sustained inbound frames/sec per session (0 disables)")
	cmd.Flags().IntVar(&burst, "burst", def.RateBurst, "inbound frame burst allowance per session")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file")

	return cmd
}

// applyFile layers a loaded config.File over cfg's defaults, skipping any
// field left blank in the file.
func applyFile(cfg *server.Config, f *config.File) error {
	if f.ControlAddr != "" {
		cfg.ControlAddr = f.ControlAddr
	}
	if f.RelayAddr != "" {
		cfg.RelayAddr = f.RelayAddr
	}
	var err error
	if cfg.PingInterval, err = config.Duration(f.PingInterval, cfg.PingInterval); err != nil {
		return err
	}
	if cfg.PongTimeout, err = config.Duration(f.PongTimeout, cfg.PongTimeout); err != nil {
		return err
	}
	if cfg.RelayTTL, err = config.Duration(f.RelayTTL, cfg.RelayTTL); err != nil {
		return err
	}
	if f.RateLimit != 0 {
		cfg.RateLimit = f.RateLimit
	}
	if f.RateBurst != 0 {
		cfg.RateBurst = f.RateBurst
	}
	return nil
}
