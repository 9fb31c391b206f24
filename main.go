package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"octave/clipboard"
	"octave/identity"
	"octave/logger"
	"octave/session"
	"octave/ui"
)

// Version is the application version.
const Version = "0.1.0"

var (
	versionFlag  = flag.Bool("version", false, "Print version information")
	helpFlag     = flag.Bool("help", false, "Show help")
	providerFlag = flag.String("provider", "", "Identity provider: toolkit or memory (overrides PROVIDER)")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("Octave v%s\n", Version)
		os.Exit(0)
	}

	if *helpFlag {
		fmt.Println("Octave - Terminal sign-in")
		fmt.Println("\nUsage:")
		fmt.Println("  octave [flags]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		fmt.Println("\nSettings are read from the environment or a .env file (see FIREBASE_API_KEY, SESSION_PASSPHRASE, LOG_FILE).")
		os.Exit(0)
	}

	if *providerFlag != "" {
		os.Setenv("PROVIDER", *providerFlag)
	}

	// Load configuration
	config, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		Level:       config.LogLevel,
		Format:      config.LogFormat,
		File:        config.LogFile,
		Development: config.LogDevelopment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// The device prompt fires from a provider goroutine after the program exists.
	var program *tea.Program
	prompt := func(code identity.DeviceCode) {
		if program != nil {
			program.Send(ui.DeviceCodeMsg(code))
		}
	}

	provider, err := newProvider(ctx, config, prompt, log)
	if err != nil {
		log.Error("Failed to create identity provider", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	uiConfig := &ui.Config{
		BootstrapTimeout: config.BootstrapTimeout,
		SubmitTimeout:    config.SubmitTimeout,
		ClipboardTimeout: config.ClipboardTimeout,
		RecoveryURL:      config.RecoveryURL,
	}

	store := session.NewStore(log)
	store.Watch(func(user identity.Identity) {
		log.Debug("Session available to the app", zap.String("uid", user.UID))
	})

	// Create TUI application
	app := ui.NewApp(&ui.Context{
		Provider:         provider,
		Store:            store,
		ClipboardManager: clipboard.NewManager(log),
		Config:           uiConfig,
		Logger:           log,
		Base:             ctx,
	})
	defer app.Close()

	program = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	// Handle signals in background
	go func() {
		<-sigCh
		app.Close()
		cancel()
		program.Quit()
	}()

	log.Info("Octave started", zap.String("version", Version), zap.String("provider", config.Provider))

	// Run the program
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Error("Program exited with error", zap.Error(err))
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// newProvider builds the identity provider selected by config.
func newProvider(ctx context.Context, config *Config, prompt func(identity.DeviceCode), log *zap.Logger) (identity.Provider, error) {
	switch config.Provider {
	case ProviderMemory:
		accounts, err := ParseMemoryAccounts(config.MemoryAccounts)
		if err != nil {
			return nil, err
		}
		var opts []identity.MemoryOption
		for _, a := range accounts {
			opts = append(opts, identity.WithAccount(a.Email, a.Password, a.Name))
		}
		p, err := identity.NewMemoryProvider(log, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		var verifier identity.TokenVerifier
		if config.FirebaseProjectID != "" {
			v, err := identity.NewFirebaseVerifier(ctx, config.FirebaseProjectID, log)
			if err != nil {
				return nil, err
			}
			verifier = v
		}
		p, err := identity.NewToolkitProvider(ctx, identity.ToolkitConfig{
			APIKey:             config.FirebaseAPIKey,
			GoogleClientID:     config.GoogleClientID,
			GoogleClientSecret: config.GoogleClientSecret,
			Session:            identity.NewSessionFile(config.SessionPath, config.SessionPassphrase),
			Verifier:           verifier,
			DevicePrompt:       prompt,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
