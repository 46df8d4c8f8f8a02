package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/rdmochat/internal/anthropic"
	"github.com/stupiduntilnot/rdmochat/internal/chat"
	"github.com/stupiduntilnot/rdmochat/internal/config"
	ctxpkg "github.com/stupiduntilnot/rdmochat/internal/context"
	"github.com/stupiduntilnot/rdmochat/internal/control"
	"github.com/stupiduntilnot/rdmochat/internal/dummy"
	"github.com/stupiduntilnot/rdmochat/internal/history"
	"github.com/stupiduntilnot/rdmochat/internal/logging"
	"github.com/stupiduntilnot/rdmochat/internal/message"
	modelpkg "github.com/stupiduntilnot/rdmochat/internal/model"
	"github.com/stupiduntilnot/rdmochat/internal/openai"
)

const (
	continuationNotice = "Welcome back! Your previous conversation for this project is restored. Type /reset to start over."
	confirmationNotice = "Hi! I can help you with research data management for this project. Type /quit to leave."
	emptyReplyNotice   = "(empty model response)"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[chatbot] %v\n", err)
		os.Exit(1)
	}
}

type sessionFlags struct {
	user        string
	project     string
	name        string
	contextFile string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "user identifier (required)")
	cmd.Flags().StringVar(&f.project, "project", "", "project id; empty for the project-less conversation")
	cmd.Flags().StringVar(&f.name, "name", "", "display name used in the system prompt")
	cmd.Flags().StringVar(&f.contextFile, "context", "", "JSON file with the project context")
	_ = cmd.MarkFlagRequired("user")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatbot",
		Short:         "Research data management assistant with persistent per-project history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChatCmd(), newHistoryCmd())
	return root
}

func newChatCmd() *cobra.Command {
	var flags sessionFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := sessionFromFlags(flags)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			provider, err := newModelProvider(a.cfg)
			if err != nil {
				return err
			}
			orch := newOrchestrator(a, provider)
			return runREPL(cmd.Context(), orch, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or delete stored conversation history",
	}

	var showFlags sessionFlags
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored history as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := sessionFromFlags(showFlags)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return showHistory(cmd.Context(), a.store, session.Key, cmd.OutOrStdout())
		},
	}
	showFlags.register(show)

	var resetFlags sessionFlags
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := sessionFromFlags(resetFlags)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.ResetHistory(cmd.Context(), session.Key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "history reset for %s\n", session.Key)
			return nil
		},
	}
	resetFlags.register(reset)

	cmd.AddCommand(show, reset)
	return cmd
}

// app holds the process-wide dependencies shared by all commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  history.Store
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	store, err := history.DefaultRegistry().Open(ctx, cfg.Store, history.Options{
		Connection: cfg.StoreConnection,
		TTL:        cfg.StoreTTL,
		Logger:     logger.Named("history"),
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Info("history store ready", zap.String("store", cfg.Store))
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) close() {
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("closing history store failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func newModelProvider(cfg config.Config) (modelpkg.Provider, error) {
	switch cfg.LLMProvider {
	case "openai", "ollama":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTimeout), nil
	case "anthropic":
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTimeout), nil
	case "dummy":
		return dummy.NewProvider(cfg.LLMModel, cfg.DummyScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.LLMProvider)
	}
}

func newOrchestrator(a *app, provider modelpkg.Provider) *chat.Orchestrator {
	return chat.New(a.store, provider, chat.Options{
		SystemPrompt: a.cfg.SystemPrompt,
		Compressor:   &ctxpkg.SimpleCompressor{MaxMessages: a.cfg.HistoryWindow},
		Breaker:      control.NewCircuitBreaker(a.cfg.BreakerThreshold, a.cfg.BreakerCooldown),
		Logger:       a.logger.Named("chat"),
	})
}

func sessionFromFlags(f sessionFlags) (chat.Session, error) {
	user := strings.TrimSpace(f.user)
	if user == "" {
		return chat.Session{}, errors.New("--user is required")
	}
	s := chat.Session{Key: history.GlobalKey(user), DisplayName: strings.TrimSpace(f.name)}
	if p := strings.TrimSpace(f.project); p != "" {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return chat.Session{}, fmt.Errorf("--project must be an integer, got %q", f.project)
		}
		s.Key = history.NewKey(user, id)
	}
	if f.contextFile != "" {
		data, err := os.ReadFile(f.contextFile)
		if err != nil {
			return chat.Session{}, fmt.Errorf("read project context: %w", err)
		}
		if err := json.Unmarshal(data, &s.ProjectContext); err != nil {
			return chat.Session{}, fmt.Errorf("parse project context %s: %w", f.contextFile, err)
		}
	}
	return s, nil
}

// runREPL reads one message per line. /reset deletes the history and /quit
// (or EOF) ends the session. Turn failures are reported and the loop goes on.
func runREPL(ctx context.Context, orch *chat.Orchestrator, s chat.Session, in io.Reader, out io.Writer) error {
	resumed, err := orch.Start(ctx, s)
	if err != nil {
		return err
	}
	if resumed {
		fmt.Fprintln(out, continuationNotice)
	} else {
		fmt.Fprintln(out, confirmationNotice)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			_, err := orch.HandleEvent(ctx, s, chat.Event{
				Kind:     chat.EventSystemMessage,
				Metadata: map[string]any{"action": chat.ActionResetHistory},
			})
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			fmt.Fprintln(out, "History cleared.")
			continue
		}

		reply, err := orch.HandleEvent(ctx, s, chat.Event{Kind: chat.EventUserMessage, Content: line})
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		fmt.Fprintln(out, displayReply(reply))
	}
}

// displayReply formats a model reply for the terminal. The stored history
// keeps the reply as returned.
func displayReply(reply string) string {
	if r := strings.TrimSpace(reply); r != "" {
		return r
	}
	return emptyReplyNotice
}

func showHistory(ctx context.Context, store history.Store, key history.Key, out io.Writer) error {
	msgs, err := store.GetHistory(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(message.Encode(msgs), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
