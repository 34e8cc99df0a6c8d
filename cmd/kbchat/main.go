package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/wolfman30/kb-chat-portal/cmd/mainconfig"
	appconfig "github.com/wolfman30/kb-chat-portal/internal/config"
	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	"github.com/wolfman30/kb-chat-portal/internal/render"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
)

const quitCommand = "/quit"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	service := conversation.NewService(
		mainconfig.NewKnowledgeBaseClient(awsCfg, cfg),
		logger,
		mainconfig.ServiceOptions(cfg, nil)...,
	)

	renderer, err := render.NewTerminalRenderer(os.Getenv("GLAMOUR_STYLE"), 100)
	if err != nil {
		log.Fatalf("terminal renderer: %v", err)
	}

	if err := run(ctx, os.Stdin, os.Stdout, service, renderer, cfg); err != nil {
		log.Fatal(err)
	}
}

// run reads one message per line and prints each reply until EOF, /quit or
// ctx ends. Input is read on its own goroutine so cancellation is noticed while
// waiting at the prompt.
func run(ctx context.Context, in io.Reader, out io.Writer, service *conversation.Service, renderer *render.TerminalRenderer, cfg *appconfig.Config) error {
	fmt.Fprintln(out, titleStyle.Render(cfg.ChatTitle))
	if cfg.ChatSubtitle != "" {
		fmt.Fprintln(out, mutedStyle.Render(cfg.ChatSubtitle))
	}
	fmt.Fprintln(out, mutedStyle.Render("Type "+quitCommand+" to exit."))

	lines, readErr := readLines(ctx, in)
	state := conversation.NewState()

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, promptStyle.Render("You: "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return <-readErr
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case line == quitCommand:
			return nil
		}

		result, err := service.ProcessTurn(ctx, state, line)
		if ctx.Err() != nil {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			continue
		}

		fmt.Fprintln(out, promptStyle.Render("Chatbot:"))
		if result.Turn.Failed {
			fmt.Fprintln(out, errorStyle.Render(result.Turn.BotText))
			continue
		}
		fmt.Fprint(out, renderer.Render(result.Segments))
		for _, c := range result.Citations {
			fmt.Fprintln(out, mutedStyle.Render("source: "+strings.Join(c.Sources, ", ")))
		}
	}
}

// readLines streams lines from in until EOF or ctx ends. The error channel
// receives the scanner error once lines is closed.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}
