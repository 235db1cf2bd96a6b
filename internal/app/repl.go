package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"
)

// SlashCommand represents a command that starts with /
type SlashCommand struct {
	Name        string
	Description string
	Handler     func(context.Context, *Chat) bool // Returns true if should exit
}

// getSlashCommands returns all available slash commands
func getSlashCommands() []SlashCommand {
	return []SlashCommand{
		{
			Name:        "help",
			Description: "Show available commands and usage information",
			Handler: func(_ context.Context, c *Chat) bool {
				showInteractiveHelp()
				return false
			},
		},
		{
			Name:        "agents",
			Description: "Choose which agent receives your messages",
			Handler: func(_ context.Context, c *Chat) bool {
				showAgentSelector(c)
				return false
			},
		},
		{
			Name:        "retry",
			Description: "Retry delivery of queued messages now",
			Handler: func(ctx context.Context, c *Chat) bool {
				pending := c.PendingCount()
				if pending == 0 {
					fmt.Println("✅ Nothing queued, all messages delivered.")
					return false
				}
				fmt.Printf("🔁 Retrying %d queued message(s)...\n", pending)
				c.RetryPending(ctx)
				if remaining := c.PendingCount(); remaining > 0 {
					fmt.Printf("⏳ %d message(s) still queued.\n", remaining)
				} else {
					fmt.Println("✅ All queued messages delivered.")
				}
				return false
			},
		},
		{
			Name:        "pending",
			Description: "Show how many messages are waiting for delivery",
			Handler: func(_ context.Context, c *Chat) bool {
				pending := c.PendingCount()
				if pending == 0 {
					fmt.Println("✅ No messages waiting for delivery.")
				} else {
					fmt.Printf("⏳ %d message(s) waiting for delivery.\n", pending)
				}
				return false
			},
		},
		{
			Name:        "log",
			Description: "Show conversation history (preview)",
			Handler: func(_ context.Context, c *Chat) bool {
				history := c.HistoryPreview(50)
				if strings.TrimSpace(history) == "" {
					fmt.Println("📜 No conversation history found.")
					return false
				}
				fmt.Print(history)
				return false
			},
		},
		{
			Name:        "clear",
			Description: "Clear conversation history and queued messages",
			Handler: func(_ context.Context, c *Chat) bool {
				c.ClearHistory()
				fmt.Println("🧹 Conversation cleared.")
				return false
			},
		},
		{
			Name:        "reset-session",
			Description: "Clear the conversation and start a fresh session",
			Handler: func(_ context.Context, c *Chat) bool {
				if err := c.ResetSession(); err != nil {
					fmt.Printf("❌ Failed to reset session: %v\n", err)
					return false
				}
				fmt.Println("🧹 Session reset, next message starts fresh.")
				return false
			},
		},
		{
			Name:        "quit",
			Description: "Exit the chat session",
			Handler: func(_ context.Context, c *Chat) bool {
				fmt.Println("👋 Goodbye!")
				return true
			},
		},
		{
			Name:        "exit",
			Description: "Exit the chat session (alias for quit)",
			Handler: func(_ context.Context, c *Chat) bool {
				fmt.Println("👋 Goodbye!")
				return true
			},
		},
	}
}

// handleSlashCommand processes commands that start with /
// Returns true if the command requests program exit, false otherwise
func handleSlashCommand(ctx context.Context, input string, c *Chat) bool {
	// Check if this is just "/" - show command selector
	if strings.TrimSpace(input) == "/" {
		return showCommandSelector(ctx, c)
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false
	}

	commandName := strings.TrimPrefix(parts[0], "/")

	// "/agents <id>" switches directly without the selector
	if commandName == "agents" && len(parts) > 1 {
		switchAgent(c, parts[1])
		return false
	}

	commands := getSlashCommands()
	for _, cmd := range commands {
		if cmd.Name == commandName {
			return cmd.Handler(ctx, c)
		}
	}

	// Command not found - show available commands
	fmt.Printf("❌ Unknown command: /%s\n", commandName)
	fmt.Println("💡 Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  /%s - %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\n💡 Tip: Type just '/' to see an interactive command selector!")
	return false
}

// showCommandSelector shows an interactive command selector using promptui
func showCommandSelector(ctx context.Context, c *Chat) bool {
	commands := getSlashCommands()

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "▸ {{ .Name | cyan }} - {{ .Description | faint }}",
		Inactive: "  {{ .Name | cyan }} - {{ .Description | faint }}",
		Selected: "{{ .Name | red | cyan }}",
		Details: `
--------- Command Details ----------
{{ "Name:" | faint }}\t{{ .Name }}
{{ "Description:" | faint }}\t{{ .Description }}`,
	}

	searcher := func(input string, index int) bool {
		command := commands[index]
		name := strings.ReplaceAll(strings.ToLower(command.Name), " ", "")
		input = strings.ReplaceAll(strings.ToLower(input), " ", "")
		return strings.Contains(name, input)
	}

	prompt := promptui.Select{
		Label:     "Choose a command",
		Items:     commands,
		Templates: templates,
		Size:      10,
		Searcher:  searcher,
	}

	i, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			fmt.Println("\nCancelled.")
			return false
		}
		fmt.Printf("Command selection failed: %v\n", err)
		return false
	}
	return commands[i].Handler(ctx, c)
}

// showAgentSelector shows an interactive agent picker using promptui
func showAgentSelector(c *Chat) {
	agents := c.Agents()
	active := c.ActiveAgent()

	type row struct {
		ID     string
		Name   string
		Status string
	}
	rows := make([]row, 0, len(agents))
	cursor := 0
	for i, a := range agents {
		status := ""
		if a.Disabled {
			status = "(disabled)"
		}
		if a.ID == active.ID {
			status = "(active)"
			cursor = i
		}
		rows = append(rows, row{ID: a.ID, Name: a.Name, Status: status})
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "▸ {{ .Name | cyan }} {{ .Status | faint }}",
		Inactive: "  {{ .Name | cyan }} {{ .Status | faint }}",
		Selected: "{{ .Name | cyan }}",
	}

	prompt := promptui.Select{
		Label:     "Choose an agent",
		Items:     rows,
		Templates: templates,
		Size:      10,
		CursorPos: cursor,
	}

	i, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			fmt.Println("\nCancelled.")
			return
		}
		fmt.Printf("Agent selection failed: %v\n", err)
		return
	}
	switchAgent(c, rows[i].ID)
}

func switchAgent(c *Chat, id string) {
	if err := c.SelectAgent(id); err != nil {
		fmt.Printf("❌ Cannot switch to '%s': %v\n", id, err)
		return
	}
	fmt.Printf("⚙️ Messages now go to %s.\n", c.ActiveAgent().Name)
}

// StartInteractiveMode runs the readline-based REPL
func StartInteractiveMode(ctx context.Context, c *Chat, historyFile string) {
	rlCfg := &readline.Config{
		Prompt:              "> ",
		HistoryFile:         historyFile,
		AutoComplete:        createAutoCompleter(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		HistoryLimit:        2000,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		fmt.Printf("❌ Failed to initialize interactive mode: %v\n", err)
		fmt.Println("💡 Please use one-shot mode instead: guestchat \"your message here\"")
		return
	}
	defer rl.Close()

	WriteSplashScreen(os.Stdout, true)
	fmt.Printf("🤖 Agent: %s\n", c.ActiveAgent().Name)
	fmt.Println("💬 Commands start with '/', everything else goes to the hotel team!")
	fmt.Println("⌨️ Arrow keys to navigate; Tab for completion; Ctrl+R searches input history.")
	fmt.Println(strings.Repeat("=", 60))

	if preview := c.HistoryPreview(6); preview != "" {
		fmt.Print("\n")
		fmt.Print(preview)
		fmt.Println()
	}
	if pending := c.PendingCount(); pending > 0 {
		fmt.Printf("⏳ %d message(s) from a previous session are still queued. Use /retry to send them.\n", pending)
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleSlashCommand(ctx, input, c) {
				break
			}
			rl.Clean()
			rl.Refresh()
			continue
		}

		// Submit via the outbox with a cancellable context so Ctrl+C
		// interrupts the in-flight attempt without killing the session.
		execCtx, cancel := context.WithCancel(ctx)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT)

		go func() {
			select {
			case <-sigChan:
				fmt.Println() // Move to new line after ^C
				cancel()
			case <-execCtx.Done():
			}
		}()

		sendErr := c.Send(execCtx, input)
		wasCanceled := execCtx.Err() == context.Canceled

		signal.Stop(sigChan)
		close(sigChan)
		cancel()

		if sendErr != nil {
			if wasCanceled {
				fmt.Printf("🔄 Ready for next message.\n")
			} else {
				fmt.Printf("❌ Error: %v\n", sendErr)
			}
			continue
		}
	}
}

// createAutoCompleter creates an autocompletion function for readline
func createAutoCompleter() *readline.PrefixCompleter {
	commands := getSlashCommands()
	var pcItems []readline.PrefixCompleterInterface
	for _, cmd := range commands {
		pcItems = append(pcItems, readline.PcItem("/"+cmd.Name))
	}
	pcItems = append(pcItems, readline.PcItem("/"))
	for _, pattern := range []string{
		"What time is", "Can I get a late checkout",
		"How much is", "Is the pool open",
		"Book a table", "I need extra towels",
	} {
		pcItems = append(pcItems, readline.PcItem(pattern))
	}
	return readline.NewPrefixCompleter(pcItems...)
}

// filterInput filters input runes to handle special keys
func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showInteractiveHelp() {
	commands := getSlashCommands()
	fmt.Println("\n📚 Interactive Commands:")
	fmt.Println("  /                - Show interactive command selector")
	for _, cmd := range commands {
		fmt.Printf("  /%-15s - %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\n⌨️  Enhanced Features:")
	fmt.Println("  Ctrl+C           - Cancel current input or in-flight send")
	fmt.Println("  Ctrl+R           - Search input history")
	fmt.Println("  Tab              - Auto-complete commands")
	fmt.Println("  Arrow keys       - Navigate input and history")
	fmt.Println("\n💡 Example messages:")
	fmt.Println("  > What time is breakfast served?")
	fmt.Println("  > How much is a sea-view suite this weekend?")
	fmt.Println("  > Can I get a late checkout on Sunday?")
	fmt.Println("\n📡 Messages sent while offline are queued and retried automatically.")
}
