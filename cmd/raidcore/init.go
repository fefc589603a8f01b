package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/raidcore/raidcore/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively generate a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

// runInit walks through first-run setup the way goclaw's onboard_*
// commands do, but as a single form: it only collects values that belong
// in the JSON5 file. Secrets (the gateway token, database DSNs, platform
// bot tokens) are env-only per internal/config's struct tags and are
// never written to disk here; runInit prints the export lines for them
// instead.
func runInit() error {
	cfg := config.Default()

	var (
		host           = cfg.Gateway.Host
		port           = fmt.Sprintf("%d", cfg.Gateway.Port)
		originsCSV     string
		mode           = "standalone"
		standaloneDir  = cfg.Database.StandaloneDir
		webScrape      = cfg.Platforms.WebScrapeFallback
		wantGateway    bool
		wantDiscord    bool
		wantTelegram   bool
		wantSlack      bool
		wantModelEngine bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Gateway host").Value(&host),
			huh.NewInput().Title("Gateway port").Value(&port),
			huh.NewInput().Title("Allowed WS origins (comma-separated, blank = any)").Value(&originsCSV),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database mode").
				Options(huh.NewOption("standalone (embedded sqlite)", "standalone"), huh.NewOption("managed (postgres)", "managed")).
				Value(&mode),
			huh.NewInput().Title("Standalone data directory").Value(&standaloneDir),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Set a gateway bearer token now?").Value(&wantGateway),
			huh.NewConfirm().Title("Enable a Discord ingress adapter?").Value(&wantDiscord),
			huh.NewConfirm().Title("Enable a Telegram ingress adapter?").Value(&wantTelegram),
			huh.NewConfirm().Title("Enable a Slack ingress adapter?").Value(&wantSlack),
			huh.NewConfirm().Title("Use a headless-browser verification fallback?").Value(&webScrape),
			huh.NewConfirm().Title("Point the Prompt Dispatcher at an OpenAI-compatible model engine?").Value(&wantModelEngine),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	var portNum int
	if _, err := fmt.Sscanf(port, "%d", &portNum); err != nil || portNum <= 0 {
		return fmt.Errorf("init: invalid port %q", port)
	}

	out := config.Default()
	out.Gateway.Host = host
	out.Gateway.Port = portNum
	if originsCSV != "" {
		for _, o := range strings.Split(originsCSV, ",") {
			out.Gateway.AllowedOrigins = append(out.Gateway.AllowedOrigins, strings.TrimSpace(o))
		}
	}
	out.Database.StandaloneDir = standaloneDir
	out.Platforms.WebScrapeFallback = webScrape

	path := resolveConfigPath()
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("init: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("init: write %s: %w", path, err)
	}

	fmt.Printf("\nWrote %s\n\n", path)
	fmt.Println("Export the following environment variables (secrets are never read from the config file):")
	if wantGateway {
		fmt.Println("  export GATEWAY_TOKEN=...")
	}
	if mode == "managed" {
		fmt.Println("  export DATABASE_TX_DSN=...")
		fmt.Println("  export DATABASE_SESS_DSN=...")
	}
	if wantDiscord {
		fmt.Println("  export DISCORD_BOT_TOKEN=...")
		fmt.Println("  export DISCORD_PUBLIC_KEY=...")
	}
	if wantTelegram {
		fmt.Println("  export TELEGRAM_BOT_TOKEN=...")
		fmt.Println("  export TELEGRAM_SECRET_TOKEN=...")
	}
	if wantSlack {
		fmt.Println("  export SLACK_BOT_TOKEN=...")
		fmt.Println("  export SLACK_SIGNING_SECRET=...")
	}
	if wantModelEngine {
		fmt.Println("  export MODEL_ENGINE_API_BASE=...")
		fmt.Println("  export MODEL_ENGINE_API_KEY=...")
	}
	fmt.Println("\nRun `raidcore doctor` after exporting them to confirm everything is reachable.")
	return nil
}
