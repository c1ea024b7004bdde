package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/session"
	"github.com/tclaveria/concierge/pkg/models"
)

var (
	chatSessionID string
	chatShowUsage bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Chat opens a REPL against the configured capability catalog. Every
line is processed as one turn: classified, routed, executed, and answered.

Session memory persists across turns (and across restarts when
session.db_path is configured), so follow-up requests can reference
entities from earlier turns.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Session id to resume (default: a fresh session)")
	chatCmd.Flags().BoolVar(&chatShowUsage, "usage", false, "Print token usage when the session ends")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := chatSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	color.Cyan("concierge: %d capabilities loaded, session %s", rt.registry.Snapshot().Len(), sessionID)
	fmt.Println(`Type a request, or "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.GreenString("> "))
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

		resp, err := rt.ctrl.ProcessRequest(cmd.Context(), sessionID, line)
		if err != nil {
			var busy *session.SessionBusyError
			if errors.As(err, &busy) {
				color.Yellow("Session is busy with another request, try again in a moment.")
				continue
			}
			return err
		}
		printResponse(resp)
	}

	if chatShowUsage {
		in, out := rt.tracker.Total()
		fmt.Printf("\nToken usage: %d input, %d output across %d calls\n", in, out, rt.tracker.Calls())
	}
	return scanner.Err()
}

func printResponse(resp *models.Response) {
	switch resp.Kind {
	case models.ResponseSuccess:
		fmt.Println(resp.Message)
	case models.ResponsePartialSuccess:
		color.Yellow(resp.Message)
	case models.ResponseClarification:
		color.Cyan(resp.Message)
	case models.ResponseRejected:
		color.Yellow(resp.Message)
	default:
		color.Red(resp.Message)
	}

	for _, res := range resp.Results {
		if res.Attempts > 1 {
			color.HiBlack("  (%s took %d attempts)", res.Capability, res.Attempts)
		}
	}
}
