package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/pkg/notify"
	"github.com/xhad/commons/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant and the chat room over a websocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The queue is built before the socket server it delivers to.
		var ws *server.WSServer
		relay := notify.NotifierFunc(func(ctx context.Context, n notify.Notification) error {
			return ws.Notify(ctx, n)
		})

		a, err := newApp(ctx, cfg, relay, hooks{})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.Close(closeCtx)
		}()

		if n, err := a.community.ReembedPending(ctx, 100); err != nil {
			logger.Warn("Failed to re-embed pending messages: %v", err)
		} else if n > 0 {
			logger.Info("Re-embedded %d pending messages", n)
		}

		ws = server.NewWSServer(server.Config{
			Streaming:    cfg.Server.Streaming,
			HistoryLimit: cfg.Server.HistoryLimit,
		}, server.Dependencies{
			Assistant: a.assistant,
			Poster:    a.community,
			Ingester:  a.ingester,
		})

		httpServer := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           ws.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting server on %s", cfg.Server.Addr)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p := &progress{}
		a, err := newApp(ctx, cfg, nil, hooks{onPage: p.onPage, onChunk: p.onChunk})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		color.Cyan("\nChat with your community knowledge base (type 'exit' to quit)")
		color.Cyan("Paste a URL to add its pages to the library.")

		scanner := bufio.NewScanner(os.Stdin)
		userPrompt := color.New(color.FgGreen).PrintfFunc()

		var history []models.Turn
		for {
			userPrompt("\nYou: ")
			if !scanner.Scan() {
				break
			}

			query := strings.TrimSpace(scanner.Text())
			if query == "" {
				continue
			}
			if strings.ToLower(query) == "exit" {
				break
			}

			if url := findURL(query); url != "" {
				color.Blue("\nDetected URL: %s", url)
				ingestURL(ctx, a, p, url)
				if query == url {
					continue
				}
			}

			history = append(history, models.Turn{Role: models.RoleUser, Text: query})
			reply, err := answer(ctx, a, history)
			if err != nil {
				color.Red("Error: %v\n", err)
				history = history[:len(history)-1]
				continue
			}

			history = append(history, models.Turn{Role: models.RoleAssistant, Text: reply})
			if limit := cfg.Server.HistoryLimit; len(history) > limit {
				history = history[len(history)-limit:]
			}
		}

		return scanner.Err()
	},
}

var ingestTitle string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|url>",
	Short: "Add a text file or a website to the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p := &progress{}
		a, err := newApp(ctx, cfg, nil, hooks{onPage: p.onPage, onChunk: p.onChunk})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		target := args[0]
		if findURL(target) == target {
			ingestURL(ctx, a, p, target)
			return nil
		}

		content, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", target, err)
		}

		title := ingestTitle
		if title == "" {
			title = filepath.Base(target)
		}

		p.startChunks()
		result, err := a.ingester.AddDocument(ctx, userID, title, string(content), target)
		p.finish()
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", target, err)
		}

		color.Green("✓ Indexed %d of %d chunks of %q (document %s)", result.IndexedChunks, result.TotalChunks, title, result.DocumentID)
		if result.Truncated {
			color.Yellow("Only the beginning of the document is searchable.")
		}
		return nil
	},
}

var reembedLimit int

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Embed chat messages that were stored without a vector",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, nil, hooks{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		n, err := a.community.ReembedPending(cmd.Context(), reembedLimit)
		if err != nil {
			return err
		}
		color.Green("✓ Re-embedded %d messages", n)
		return nil
	},
}

var postCmd = &cobra.Command{
	Use:   "post <text>",
	Short: "Post a message to the community chat",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, nil, hooks{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		msg, err := a.community.PostMessage(cmd.Context(), userID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		color.Green("✓ Posted message %s", msg.ID)
		return nil
	},
}

var nicknameCmd = &cobra.Command{
	Use:   "nickname <name>",
	Short: "Set the display name shown next to your chat messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, nil, hooks{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.community.SetNickname(cmd.Context(), userID, args[0]); err != nil {
			return err
		}
		color.Green("✓ Nickname set to %s", strings.TrimSpace(args[0]))
		return nil
	},
}

var confirmDelete bool

var deleteAccountCmd = &cobra.Command{
	Use:   "delete-account",
	Short: "Delete your documents and anonymize your chat messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmDelete {
			return fmt.Errorf("refusing to delete account %s without --yes", userID)
		}

		a, err := newApp(cmd.Context(), cfg, nil, hooks{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.community.DeleteAccount(cmd.Context(), userID); err != nil {
			return err
		}
		color.Green("✓ Account data of %s removed", userID)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Document title (defaults to the file name)")
	reembedCmd.Flags().IntVar(&reembedLimit, "limit", 100, "Maximum messages to process")
	deleteAccountCmd.Flags().BoolVar(&confirmDelete, "yes", false, "Confirm the deletion")
}

// answer prints the assistant reply to history and returns its text.
func answer(ctx context.Context, a *app, history []models.Turn) (string, error) {
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	if !cfg.Server.Streaming {
		spinner := getSpinner(" Generating response...")
		ans, err := a.assistant.Answer(ctx, history)
		_ = spinner.Finish()
		if err != nil {
			return "", err
		}
		assistantPrompt("\nAssistant: %s\n", ans.Text)
		printSources(ans.Sources)
		return ans.Text, nil
	}

	spinner := getSpinner(" Searching the library and chat...")
	sources, textCh, errCh, err := a.assistant.AnswerStream(ctx, history)
	_ = spinner.Finish()
	if err != nil {
		return "", err
	}

	fmt.Print("\n")
	assistantPrompt("Assistant: ")

	var sb strings.Builder
	for piece := range textCh {
		sb.WriteString(piece)
		fmt.Print(piece)
	}
	fmt.Print("\n")

	if err := <-errCh; err != nil {
		return "", err
	}
	printSources(sources)
	return sb.String(), nil
}

func printSources(sources []models.RetrievalCandidate) {
	if len(sources) == 0 {
		return
	}
	faint := color.New(color.Faint)
	faint.Println("Sources:")
	for _, s := range sources {
		label := string(s.SourceType)
		if s.AuthorName != "" {
			label = s.AuthorName
		}
		faint.Printf("  [%s %.2f] %s\n", label, s.Score, truncate(s.Text, 80))
	}
}

func truncate(text string, n int) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}

func ingestURL(ctx context.Context, a *app, p *progress, url string) {
	p.startPages()
	results, err := a.ingester.IngestURL(ctx, userID, url)
	p.finish()
	if err != nil {
		color.Red("Failed to ingest URL: %v\n", err)
		return
	}

	chunks := 0
	for _, r := range results {
		chunks += r.IndexedChunks
	}
	color.Green("✓ Indexed %d pages (%d chunks)\n", len(results), chunks)
}

// progress renders scraper and ingester callbacks. Both arrive from worker
// goroutines.
type progress struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	pages  int
	chunks bool
}

func (p *progress) startPages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = getSpinner(" Scraping documentation...")
	p.pages = 0
	p.chunks = false
}

func (p *progress) startChunks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = nil
	p.chunks = true
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Print("\n")
	}
	p.bar = nil
	p.chunks = false
}

func (p *progress) onPage(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages++
	if p.bar != nil {
		p.bar.Describe(color.BlueString(" Scraping documentation... (%d pages)", p.pages))
		_ = p.bar.Add(1)
	}
}

func (p *progress) onChunk(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.chunks {
		return
	}
	if p.bar == nil {
		p.bar = getProgressBar(total, " Embedding chunks")
	}
	_ = p.bar.Set(done)
}
