package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/scenario"
)

type session struct {
	app     *app
	mode    models.Mode
	out     io.Writer
	animate bool
}

// repl runs the terminal chat. animate shows a spinner while waiting on
// the model and should only be set for a real terminal.
func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer, animate bool) error {
	s := &session{app: a, mode: models.ModeAuto, out: out, animate: animate}
	fmt.Fprintf(out, "Session %s | mode: %s | %d document chunks\n", a.bot.SessionID(), s.mode, a.store.Len())
	fmt.Fprintln(out, "Type /help for commands.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := s.handleCommand(input); quit {
				return nil
			}
			continue
		}

		a.ingestChanges(ctx)

		fmt.Fprintln(out)
		var spin *spinner
		if s.animate {
			spin = startSpinner(out, "Thinking...")
		}
		reply := a.bot.Process(ctx, input, s.mode)
		if spin != nil {
			spin.Stop()
		}
		fmt.Fprintf(out, "%s\n\n", reply.Text)

		status := fmt.Sprintf("%s | %.2fs", reply.Mode, reply.Duration.Seconds())
		if reply.ScenarioType != "" {
			status += " | scenario: " + reply.ScenarioType
		}
		if reply.Corrected {
			status += " | corrected"
		}
		fmt.Fprintf(out, "[%s]\n\n", status)
	}
}

// handleCommand runs a slash command and reports whether to quit
func (s *session) handleCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	bot := s.app.bot
	out := s.out

	switch parts[0] {
	case "/help":
		fmt.Fprintln(out, "\nCommands:")
		fmt.Fprintln(out, "  /mode <auto|sva_framework|event_planning|simulation|conversational>")
		fmt.Fprintln(out, "  /scenarios                  list simulation scenarios")
		fmt.Fprintln(out, "  /event key=value ...        location, event_type, attendance")
		fmt.Fprintln(out, "  /sim key=value ...          scenario_type, severity")
		fmt.Fprintln(out, "  /save <file> /load <file>   conversation history")
		fmt.Fprintln(out, "  /snapshot <file>            save document embeddings")
		fmt.Fprintln(out, "  /clear /history /summary /stats /exit")
		fmt.Fprintln(out)

	case "/mode":
		if len(parts) < 2 {
			fmt.Fprintf(out, "\nMode: %s\n\n", s.mode)
			return false
		}
		mode, err := models.ParseMode(parts[1])
		if err != nil {
			fmt.Fprintf(out, "\n%v\n\n", err)
			return false
		}
		s.mode = mode
		fmt.Fprintf(out, "\nMode set to %s\n\n", mode)

	case "/scenarios":
		fmt.Fprintln(out, "\nAvailable scenarios:")
		for _, t := range bot.AvailableScenarios() {
			fmt.Fprintf(out, "  - %s (%s)\n", scenario.HumanName(t), t)
		}
		fmt.Fprintln(out)

	case "/event", "/sim":
		values, err := parseAssignments(parts[1:])
		if err != nil {
			fmt.Fprintf(out, "\n%v\n\n", err)
			return false
		}
		if parts[0] == "/event" {
			if err := bot.SetEventPlanningParameters(values); err != nil {
				fmt.Fprintf(out, "\n%v\n\n", err)
				return false
			}
			fmt.Fprintf(out, "\nEvent: %+v\n\n", bot.EventPlanning())
			return false
		}
		if err := bot.SetSimulationParameters(values); err != nil {
			fmt.Fprintf(out, "\n%v\n\n", err)
			return false
		}
		fmt.Fprintf(out, "\nSimulation: %+v\n\n", bot.SimulationParameters())

	case "/save", "/load", "/snapshot":
		if len(parts) < 2 {
			fmt.Fprintf(out, "\nUsage: %s <file>\n\n", parts[0])
			return false
		}
		var err error
		switch parts[0] {
		case "/save":
			err = bot.SaveConversation(parts[1])
		case "/load":
			err = bot.LoadConversation(parts[1])
		default:
			err = bot.SaveDocuments(parts[1])
		}
		if err != nil {
			fmt.Fprintf(out, "\nFailed: %v\n\n", err)
			return false
		}
		fmt.Fprintf(out, "\nDone: %s\n\n", parts[1])

	case "/clear", "/new":
		bot.ResetConversation(true)
		fmt.Fprintln(out, "\nConversation cleared")
		fmt.Fprintln(out)

	case "/history":
		msgs := bot.Memory().Messages(false)
		if len(msgs) == 0 {
			fmt.Fprintln(out, "\nNo history")
			fmt.Fprintln(out)
			return false
		}
		fmt.Fprintln(out, "\n=== History ===")
		for i, msg := range msgs {
			fmt.Fprintf(out, "%d. %s: %s\n", i+1, msg.Role, truncate(msg.Content, 60))
		}
		fmt.Fprintln(out)

	case "/summary":
		fmt.Fprintf(out, "\n%s\n\n", bot.Memory().Summary(0))

	case "/stats":
		fmt.Fprintf(out, "\nMessages: %d | Document chunks: %d\n", bot.Memory().Len(), s.app.store.Len())
		if s.app.auditDB != nil {
			stats, err := s.app.auditDB.Stats(context.Background(), time.Time{})
			if err != nil {
				fmt.Fprintf(out, "Audit: %v\n", err)
			} else {
				fmt.Fprintf(out, "Queries: %d | errors: %.0f%% | corrected: %.0f%% | avg: %s\n",
					stats.TotalQueries, stats.ErrorRate*100, stats.CorrectionRate*100, stats.AverageDuration.Round(time.Millisecond))
				for mode, n := range stats.ByMode {
					fmt.Fprintf(out, "  %s: %d\n", mode, n)
				}
			}
		}
		fmt.Fprintln(out)

	case "/exit", "/quit":
		fmt.Fprintln(out, "Goodbye!")
		return true

	default:
		fmt.Fprintf(out, "\nUnknown command %s, try /help\n\n", parts[0])
	}
	return false
}

// parseAssignments turns key=value words into parameter values. Integers
// become ints, "none" clears a value and quotes are stripped.
func parseAssignments(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected key=value pairs")
	}

	values := make(map[string]any, len(args))
	var lastKey string
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			// a bare word continues the previous value: location=Piazza Vittoria
			if lastKey == "" {
				return nil, fmt.Errorf("expected key=value, got %q", arg)
			}
			prev, isText := values[lastKey].(string)
			if !isText {
				return nil, fmt.Errorf("unexpected %q after %s", arg, lastKey)
			}
			values[lastKey] = strings.TrimSpace(prev + " " + strings.Trim(arg, `"'`))
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key in %q", arg)
		}
		raw = strings.Trim(raw, `"'`)
		lastKey = key

		switch {
		case strings.EqualFold(raw, "none"):
			values[key] = nil
		default:
			if n, err := strconv.Atoi(raw); err == nil {
				values[key] = n
			} else {
				values[key] = raw
			}
		}
	}
	return values, nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
