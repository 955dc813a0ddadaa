// Package main is the entry point for the Valet CLI, a conversational
// assistant that routes free-text input to local commands, domain
// services, or a chain of language-model providers.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/valet-ai/valet/internal/assistant"
	"github.com/valet-ai/valet/internal/command"
	"github.com/valet-ai/valet/internal/config"
	"github.com/valet-ai/valet/internal/data"
	"github.com/valet-ai/valet/internal/gdrive"
	"github.com/valet-ai/valet/internal/llm"
	"github.com/valet-ai/valet/internal/logging"
	"github.com/valet-ai/valet/internal/services"
	"github.com/valet-ai/valet/internal/session"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	offline bool
	log     *logging.Logger
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "valet",
		Short: "Valet - conversational assistant for your documents and day",
		Long: `Valet turns plain text into answers: local commands, summaries from
your tasks, calendar, mail and files, or a completion from a chain of
language-model providers with automatic fallback.

Start interactive mode:  valet
One-shot question:       valet ask "what's on my calendar?"
Configuration:           valet config show`,
		PersistentPreRunE: initLogging,
		RunE:              runREPL,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.valet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use an in-memory document store instead of Google Drive")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Valet v%s\n", version)
		},
	})
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromPath(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := logging.New(&logging.Config{
		Level:    level,
		FilePath: cfg.Logging.File,
		Console:  verbose,
	})
	logging.SetGlobal(logger)
	log = logger.WithComponent("main")
	return nil
}

// buildAssistant wires the full pipeline from configuration.
func buildAssistant(ctx context.Context) (*assistant.Assistant, *session.Session, func(), error) {
	cfg, err := config.LoadFromPath(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	store, err := data.NewDB(cfg.Data.Dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}

	chain, err := llm.NewChainFromConfig(cfg)
	if err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("build provider chain: %w", err)
	}

	granter := newGranter(cfg)
	access := gdrive.NewManager(data.CapabilitySlotDrive, store, granter)

	svcs := services.NewRegistry(cfg.Services.CacheTTL)
	registerGoogleServices(ctx, svcs, store, granter)
	locator := services.NewLocator(cfg.Services.LocationTimeout)

	registry := command.NewRegistry()
	command.RegisterBuiltins(registry, command.Deps{
		Transcript: store,
		Locator:    locator,
		SearchCap:  cfg.Drive.SearchCap,
	})

	a := assistant.New(registry, chain, svcs, store)
	sess := session.New(access)
	sess.SetContext(localContext())

	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn("close database: %v", err)
		}
	}
	return a, sess, cleanup, nil
}

// newGranter picks the document-store backend. Offline mode keeps
// everything in memory, handy without OAuth credentials.
func newGranter(cfg *config.Config) gdrive.Granter {
	if offline {
		return memGranter{ws: cfg.Drive.WorkspaceName}
	}
	return gdrive.NewDriveGranter(
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		cfg.Drive.WorkspaceName,
		func(url string) {
			fmt.Println("Open this link to grant access to your files:")
			fmt.Println("  " + url)
		},
	)
}

// memGranter satisfies the grant flow with an in-memory store.
type memGranter struct{ ws string }

func (g memGranter) Restore(ctx context.Context, handle string) (gdrive.RemoteStore, error) {
	return nil, fmt.Errorf("offline store does not survive restarts")
}

func (g memGranter) Acquire(ctx context.Context) (string, gdrive.RemoteStore, error) {
	return "offline", gdrive.NewMemStore(g.ws), nil
}

// registerGoogleServices wires the domain summarizers when a stored
// grant already exists. Without one, domain questions fall through to
// the provider chain until access is granted and the process restarts.
func registerGoogleServices(ctx context.Context, svcs *services.Registry, store *data.Store, granter gdrive.Granter) {
	dg, ok := granter.(*gdrive.DriveGranter)
	if !ok {
		return
	}
	handle, err := store.LoadCapability(ctx, data.CapabilitySlotDrive)
	if err != nil || handle == "" {
		return
	}
	client, err := dg.Client(ctx, handle)
	if err != nil {
		log.Debug("build google client: %v", err)
		return
	}

	if s, err := tasks.NewService(ctx, option.WithHTTPClient(client)); err == nil {
		svcs.Register(services.NewGoogleTasks(s))
	}
	if s, err := calendar.NewService(ctx, option.WithHTTPClient(client)); err == nil {
		svcs.Register(services.NewGoogleCalendar(s))
	}
	if s, err := gmail.NewService(ctx, option.WithHTTPClient(client)); err == nil {
		svcs.Register(services.NewGoogleMail(s))
	}
	if s, err := drive.NewService(ctx, option.WithHTTPClient(client)); err == nil {
		svcs.Register(services.NewGoogleDriveRecent(s))
	}
}

// localContext snapshots the machine facts the local-data classifier
// answers from.
func localContext() string {
	now := time.Now()
	host, err := os.Hostname()
	if err != nil {
		host = "unknown host"
	}
	zone, _ := now.Zone()

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "Time: %s\n", now.Format("3:04 PM MST"))
	fmt.Fprintf(&b, "Timezone: %s\n", zone)
	fmt.Fprintf(&b, "Device: %s (%s/%s)\n", host, runtime.GOOS, runtime.GOARCH)
	return b.String()
}

func runREPL(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, sess, cleanup, err := buildAssistant(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Valet v%s. Type a question, a command, or 'exit'.\n", version)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("you> ") + " ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if handled := handleSelection(ctx, sess, line); handled {
			continue
		}

		sess.SetContext(localContext())
		reply, err := a.Respond(ctx, sess, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}
		fmt.Println(replyStyle.Render(reply.Text))
		fmt.Println(sourceStyle.Render("— " + reply.Source))
	}
	return scanner.Err()
}

// handleSelection resolves a bare number while a focus search is
// awaiting its pick, bypassing text classification.
func handleSelection(ctx context.Context, sess *session.Session, line string) bool {
	n, err := strconv.Atoi(line)
	if err != nil {
		return false
	}
	store := sess.Access.Store()
	if store == nil {
		return false
	}
	msg, err := sess.Focus.SelectIndex(ctx, store, n)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return true
	}
	fmt.Println(replyStyle.Render(msg))
	return true
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text>",
		Short: "Ask a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sess, cleanup, err := buildAssistant(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			reply, err := a.Respond(ctx, sess, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(reply.Text)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversation history",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadFromPath(cfgPath)
			if err != nil {
				return err
			}
			store, err := data.NewDB(cfg.Data.Dir)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()

			entries, err := store.RecentAll(c.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No history yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("[%s] %s: %s\n", e.CreatedAt.Format("Jan 2 15:04"), e.Role, e.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadFromPath(cfgPath)
			if err != nil {
				return err
			}
			fmt.Printf("Provider chain: %s\n", strings.Join(cfg.LLM.ChainOrder, " -> "))
			fmt.Printf("Default provider: %s\n", cfg.LLM.DefaultProvider)
			fmt.Printf("Workspace: %s\n", cfg.Drive.WorkspaceName)
			fmt.Printf("Search cap: %d\n", cfg.Drive.SearchCap)
			fmt.Printf("Data dir: %s\n", cfg.Data.Dir)
			fmt.Printf("Log level: %s\n", cfg.Logging.Level)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(c *cobra.Command, args []string) {
			fmt.Println(config.PathOrDefault(cfgPath))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a fresh default config file",
		RunE: func(c *cobra.Command, args []string) error {
			path := config.PathOrDefault(cfgPath)
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Printf("Wrote defaults to %s\n", path)
			return nil
		},
	})
	return cmd
}
