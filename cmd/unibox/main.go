package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ajramos/unibox/internal/api"
	"github.com/ajramos/unibox/internal/config"
	"github.com/ajramos/unibox/internal/db"
	"github.com/ajramos/unibox/internal/services"
	"github.com/ajramos/unibox/internal/sync"
	"github.com/ajramos/unibox/internal/version"
)

func main() {
	// Essential command line flags only (GNU-style double dashes)
	configPathFlag := flag.String("config", "", "Path to JSON configuration file (default: ~/.config/unibox/config.json)")
	tokenFileFlag := flag.String("token-file", "", "Path to the file holding the API bearer token")
	initFlag := flag.Bool("init", false, "Write a default configuration file and exit")
	versionFlag := flag.Bool("version", false, "Show version information and exit")

	// Override flag usage text to show clean, simple usage
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.GetVersionString())
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s                        # Run with default configuration\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --init                 # Write a default configuration file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --version              # Show version information\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config custom.json   # Use custom configuration\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		fmt.Fprintf(os.Stderr, "  --config string\n        %s\n", "Path to JSON configuration file (default: ~/.config/unibox/config.json)")
		fmt.Fprintf(os.Stderr, "  --token-file string\n        %s\n", "Path to the file holding the API bearer token")
		fmt.Fprintf(os.Stderr, "  --init\n        %s\n", "Write a default configuration file and exit")
		fmt.Fprintf(os.Stderr, "  --version\n        %s\n\n", "Show version information and exit")
		fmt.Fprintf(os.Stderr, "Environment Variables:\n")
		fmt.Fprintf(os.Stderr, "  UNIBOX_CONFIG      Override default config file path\n")
		fmt.Fprintf(os.Stderr, "  UNIBOX_BASE_URL    Override the platform API base URL\n")
		fmt.Fprintf(os.Stderr, "  UNIBOX_TOKEN_FILE  Override default token file path\n\n")
		fmt.Fprintf(os.Stderr, "For all other settings (sync, compose, etc.), edit the config file.\n")
	}

	flag.Parse()

	// Handle version flag
	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	configPath := getConfigPath(*configPathFlag)

	// Handle init mode
	if *initFlag {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("Configuration file already exists: %s\n", configPath)
			return
		}
		if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
			log.Fatalf("Could not create configuration file: %v", err)
		}
		fmt.Printf("Created configuration file: %s\n", configPath)
		return
	}

	// Load configuration with smart defaults and environment variable support
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: could not load configuration: %v", err)
		cfg = config.DefaultConfig()
	}

	if *tokenFileFlag != "" {
		cfg.TokenFile = expandPath(*tokenFileFlag)
	}

	logger := setupLogger(cfg.LogFile)

	if cfg.BaseURL == "" {
		log.Fatal("Platform API base URL is required. Set base_url in the config file or UNIBOX_BASE_URL.")
	}

	token, err := readToken(cfg.TokenFile)
	if err != nil {
		log.Fatalf("Could not read API token: %v", err)
	}

	ctx := context.Background()
	client := api.NewClient(cfg.BaseURL, token)

	// Optional: open the local store for rules and preferences
	var store *db.Store
	if cfg.DBPath != "" {
		if st, err := db.Open(ctx, expandPath(cfg.DBPath)); err == nil {
			store = st
			defer func() { _ = st.Close() }()
		} else {
			log.Printf("Warning: could not open local store: %v", err)
		}
	}

	// Wire the service layer
	threads := services.NewThreadService()
	rules := services.NewRuleService(store)
	folders := services.NewFolderService(client, threads, rules, cfg.Sync.PageSize)
	drafts := services.NewDraftService(client, cfg.AutosaveDebounce())
	sender := services.NewSendService(client, folders, cfg.UndoWindow())

	for _, s := range []interface{ SetLogger(*log.Logger) }{threads, rules, folders, drafts, sender} {
		s.SetLogger(logger)
	}

	// Start the refresh engine and, when configured, the push listener
	engine := sync.New(folders, cfg.PollInterval())
	engine.SetLogger(logger)
	engine.Start()
	defer engine.Stop()

	var listener *sync.Listener
	if cfg.Sync.PushURL != "" {
		listener = sync.NewListener(cfg.Sync.PushURL, token, engine)
		listener.SetLogger(logger)
		listener.Start()
		defer listener.Stop()
	}

	if err := folders.SetCurrentFolder(ctx, cfg.InitialFolder); err != nil {
		log.Printf("Warning: initial folder load failed: %v", err)
	}

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

// setupLogger returns a file logger when a log file is configured,
// otherwise a stderr logger.
func setupLogger(logFile string) *log.Logger {
	if logFile == "" {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	path := expandPath(logFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.Printf("Warning: could not create log directory: %v", err)
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.Printf("Warning: could not open log file: %v", err)
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(f, "", log.LstdFlags)
}

// readToken reads and trims the bearer token from the given file
func readToken(tokenFile string) (string, error) {
	if tokenFile == "" {
		return "", fmt.Errorf("token file is required; set token_file in the config file, --token-file, or UNIBOX_TOKEN_FILE")
	}
	data, err := os.ReadFile(expandPath(tokenFile))
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", tokenFile)
	}
	return token, nil
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable UNIBOX_CONFIG
// 3. Default path ~/.config/unibox/config.json
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return expandPath(flagValue)
	}

	if envPath := os.Getenv("UNIBOX_CONFIG"); envPath != "" {
		return expandPath(envPath)
	}

	return config.DefaultConfigPath()
}

// expandPath expands ~ to the user's home directory
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return home
	}

	return filepath.Join(home, path[2:])
}
