package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raidcore/raidcore/internal/config"
	"github.com/raidcore/raidcore/internal/storerouter"
	"github.com/raidcore/raidcore/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("raidcore doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults + env will be used)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.IsStandalone() {
		fmt.Printf("    %-12s standalone (%s)\n", "Mode:", cfg.Database.StandaloneDir)
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		router, err := storerouter.NewStandalone(checkCtx, cfg.Database.StandaloneDir, storerouter.Config{
			TxPoolSize:   cfg.Database.PoolTxSize,
			SessPoolSize: cfg.Database.PoolSessSize,
		})
		if err != nil {
			fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
			router.Close()
		}
	} else {
		fmt.Printf("    %-12s managed\n", "Mode:")
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		router, err := storerouter.NewPostgres(checkCtx, cfg.Database.TxDSN, storerouter.Config{
			TxPoolSize:   cfg.Database.PoolTxSize,
			SessPoolSize: cfg.Database.PoolSessSize,
		})
		if err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
			router.Close()
		}
	}

	fmt.Println()
	fmt.Println("  Platforms:")
	checkPlatform("Discord", cfg.Platforms.Discord.Enabled())
	checkPlatform("Telegram", cfg.Platforms.Telegram.Enabled())
	checkPlatform("Slack", cfg.Platforms.Slack.Enabled())
	fmt.Printf("    %-12s %v\n", "Web scrape fallback:", cfg.Platforms.WebScrapeFallback)

	fmt.Println()
	fmt.Println("  Model engine:")
	if cfg.ModelEngine.Enabled() {
		fmt.Printf("    %-12s %s (%s)\n", "Mode:", "http", cfg.ModelEngine.Model)
		maskedKey := maskSecret(cfg.ModelEngine.APIKey)
		fmt.Printf("    %-12s %s\n", "API key:", maskedKey)
	} else {
		fmt.Printf("    %-12s echo (no model_engine.api_base configured)\n", "Mode:")
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s:%d\n", "Listen:", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token == "" {
		fmt.Printf("    %-12s NOT SET (every request is accepted unauthenticated)\n", "Token:")
	} else {
		fmt.Printf("    %-12s %s\n", "Token:", maskSecret(cfg.Gateway.Token))
	}
	if len(cfg.Gateway.AllowedOrigins) == 0 {
		fmt.Printf("    %-12s any (no allow-list configured)\n", "Origins:")
	} else {
		fmt.Printf("    %-12s %s\n", "Origins:", strings.Join(cfg.Gateway.AllowedOrigins, ", "))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkPlatform(name string, enabled bool) {
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func maskSecret(s string) string {
	if s == "" {
		return "(not configured)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
