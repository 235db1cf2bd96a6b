package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harborview/guestchat/internal/app"
	"github.com/harborview/guestchat/internal/config"
	"github.com/harborview/guestchat/internal/infra"
	"github.com/harborview/guestchat/internal/repository"
	"github.com/harborview/guestchat/internal/session"
	pkgLogger "github.com/harborview/guestchat/pkg/logger"
	"github.com/harborview/guestchat/pkg/outbox"
	"github.com/harborview/guestchat/pkg/transport"
)

// resolveStringFlag returns the non-empty value, preferring short flag over long flag
func resolveStringFlag(shortVal, longVal string) string {
	if shortVal != "" {
		return shortVal
	}
	return longVal
}

func printUsage() {
	fmt.Println("guestchat - hotel guest messaging client with offline-tolerant delivery")
	fmt.Println()
	fmt.Println("Agents:")
	fmt.Println("  general                 Concierge desk (default)")
	fmt.Println("  rate                    Room rate questions")
	fmt.Println("  forecast                Availability forecasts")
	fmt.Println()
	fmt.Println("Settings are loaded from:")
	fmt.Println("  .guestchat/settings.json      Project-local settings")
	fmt.Println("  ~/.guestchat/settings.json    Per-user settings")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  guestchat                                # Interactive chat")
	fmt.Println("  guestchat \"What time is breakfast?\"      # One-shot message")
	fmt.Println("  guestchat -a rate \"How much is a suite?\" # Message a specific agent")
	fmt.Println("  guestchat --agents agents.yaml           # Custom agent backends")
	fmt.Println("  guestchat --ephemeral                    # No state persisted to disk")
	fmt.Println("  guestchat -v \"Is the pool open?\"         # Verbose debug logging")
	fmt.Println("  guestchat -l                             # Show conversation history")
	fmt.Println()
}

func main() {
	ctx := context.Background()

	// Define command line flags
	var agentFlag = flag.String("a", "", "Agent to send messages to (general, rate, or forecast)")
	var agentFlagLong = flag.String("agent", "", "Agent to send messages to (general, rate, or forecast)")
	var settingsPath = flag.String("settings", "", "Path to settings file")
	var agentsFile = flag.String("agents", "", "Path to YAML file defining agent backends")
	var stateDir = flag.String("state-dir", "", "Directory for persisted chat state")
	var ephemeral = flag.Bool("ephemeral", false, "Keep all state in memory, persist nothing")
	var showLog = flag.Bool("l", false, "Print conversation history and exit")
	var showLogLong = flag.Bool("log", false, "Print conversation history and exit")
	var verbose = flag.Bool("v", false, "Enable verbose logging (debug level)")
	var verboseLong = flag.Bool("verbose", false, "Enable verbose logging (debug level)")
	var help = flag.Bool("h", false, "Show this help message")
	var helpLong = flag.Bool("help", false, "Show this help message")

	flag.Usage = func() {
		printUsage()
		fmt.Println("Flags:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *help || *helpLong {
		flag.Usage()
		return
	}

	resolvedAgent := resolveStringFlag(*agentFlag, *agentFlagLong)
	resolvedShowLog := *showLog || *showLogLong
	resolvedVerbose := *verbose || *verboseLong

	// Get remaining arguments as the message
	args := flag.Args()

	// Load settings
	settings, err := config.LoadSettings(*settingsPath)
	if err != nil {
		fmt.Printf("Warning: failed to load settings: %v\n", err)
		settings = config.GetDefaultSettings()
	}

	// Initialize structured logger based on settings
	logLevel := settings.App.LogLevel
	if resolvedVerbose {
		logLevel = "debug"
	}
	out := os.Stdout
	pkgLogger.SetGlobalLoggerWithConsoleWriter(pkgLogger.LogLevel(logLevel), out)
	logger := pkgLogger.NewLoggerWithConsoleWriter(pkgLogger.LogLevel(logLevel), out)

	// Override settings with command line arguments
	if *agentsFile != "" {
		settings.Agents.File = *agentsFile
	}
	if *stateDir != "" {
		settings.App.StateDir = *stateDir
	}

	// Validate settings
	if err := config.ValidateSettings(settings); err != nil {
		logger.Error("Settings validation failed", "error", err)
		os.Exit(1)
	}

	// Assemble the agent registry
	registry, err := config.BuildRegistry(settings)
	if err != nil {
		logger.Error("Failed to configure agent backends", "error", err)
		os.Exit(1)
	}

	// Pick the state repository: files by default, memory when ephemeral
	var stateRepo repository.StateRepository
	resolvedStateDir := settings.StateDir()
	if *ephemeral {
		stateRepo = infra.NewMemoryStateRepository()
	} else {
		stateRepo = infra.NewFileStateRepository(resolvedStateDir)
	}

	// Transport with offline fast-fail
	checker := infra.NewNetChecker()
	client := transport.NewClient(
		transport.WithTimeout(settings.RequestTimeout()),
		transport.WithChecker(checker),
		transport.WithLogger(logger),
	)

	engine := outbox.NewEngine(registry, client, stateRepo,
		outbox.WithEngineLogger(logger.WithComponent("outbox")),
		outbox.WithAttemptTimeout(settings.AgentTimeout),
	)
	engine.Load()

	sessions := session.NewProvider(resolvedStateDir)
	chat := app.NewChat(engine, sessions, registry, settings, logger, out)

	// Apply agent override from the command line
	if resolvedAgent != "" {
		if err := chat.SelectAgent(resolvedAgent); err != nil {
			logger.Error("Unknown agent", "agent", resolvedAgent, "error", err)
			os.Exit(1)
		}
	}

	// Handle special command line options
	if resolvedShowLog {
		history := chat.HistoryPreview(1000)
		if strings.TrimSpace(history) != "" {
			fmt.Println("Conversation History:")
			fmt.Println(strings.Repeat("=", 60))
			fmt.Print(history)
			fmt.Println(strings.Repeat("=", 60))
		} else {
			fmt.Println("No conversation history found.")
		}
		return
	}

	// Retry anything left queued by a previous run once connectivity allows
	watcher := infra.NewWatcher(checker, 10*time.Second, func() {
		engine.RetryPending(ctx)
	}, logger.WithComponent("connectivity"))
	watcher.Start()
	defer watcher.Stop()

	// Determine if we should run in interactive mode or one-shot mode
	if len(args) > 0 {
		userInput := strings.Join(args, " ")
		executeOneShot(ctx, chat, engine, userInput)
	} else {
		historyFile := ""
		if !*ephemeral {
			if userConfig, err := config.DefaultUserConfig(); err == nil {
				historyFile = userConfig.HistoryFile
			}
		}
		app.StartInteractiveMode(ctx, chat, historyFile)
	}
}

func executeOneShot(ctx context.Context, chat *app.Chat, engine *outbox.Engine, userInput string) {
	fmt.Print("\n")

	if err := chat.Send(ctx, userInput); err != nil {
		fmt.Printf("Failed to send message: %v\n", err)
		os.Exit(1)
	}

	// Queued or failed delivery exits non-zero so scripts can tell
	if engine.PendingCount() > 0 {
		os.Exit(2)
	}
}
