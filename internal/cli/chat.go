package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/wabot/internal/adminclient"
	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/memorylog"
)

func newChatCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var (
		chatID     string
		display    string
		message    string
		choiceID   string
		timeoutSec int
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the running bot as a chat id, over the admin API",
		Long:  "Sends messages through the same router WhatsApp uses and prints the replies. Without a message it starts an interactive session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAdminClientFromEnv(timeoutSec)
			if err != nil {
				return err
			}
			resolvedChatID := resolveChatID(chatID)
			if resolvedChatID == "" {
				return fmt.Errorf("--chat-id is required when WABOT_ADMIN_PHONE is unset")
			}

			text := strings.TrimSpace(message)
			if text == "" && len(args) > 0 {
				text = strings.TrimSpace(strings.Join(args, " "))
			}
			if text != "" || strings.TrimSpace(choiceID) != "" {
				ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
				defer cancel()
				response, err := client.Chat(ctx, adminclient.ChatRequest{
					ChatID:      resolvedChatID,
					DisplayName: display,
					Text:        text,
					ChoiceID:    choiceID,
				})
				if err != nil {
					return err
				}
				printBotReply(cmd, response)
				return nil
			}

			cmd.Printf("Conectado como %s (%s). Escribe /exit para salir.\n", display, resolvedChatID)
			return runInteractiveChat(cmd, client, resolvedChatID, display, timeoutSec)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "chat id (phone digits) to talk as; defaults to the admin phone")
	cmd.Flags().StringVar(&display, "display-name", "CLI", "display name for the contact")
	cmd.Flags().StringVarP(&message, "message", "m", "", "single message to send (non-interactive mode)")
	cmd.Flags().StringVar(&choiceID, "choice", "", "button or list option id to send, e.g. cat_2")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 120, "request timeout in seconds")

	cmd.AddCommand(newChatReplayCommand())
	return cmd
}

func runInteractiveChat(cmd *cobra.Command, client *adminclient.Client, chatID, displayName string, timeoutSec int) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print("tú> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/exit" || text == "/quit" {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
		response, err := client.Chat(ctx, adminclient.ChatRequest{
			ChatID:      chatID,
			DisplayName: displayName,
			Text:        text,
		})
		cancel()
		if err != nil {
			cmd.PrintErrf("chat request failed: %v\n", err)
			continue
		}
		printBotReply(cmd, response)
	}
	return scanner.Err()
}

func printBotReply(cmd *cobra.Command, response adminclient.ChatResponse) {
	reply := strings.TrimSpace(response.Reply)
	switch {
	case reply == "" && response.Attachment == nil:
		cmd.Println("bot> (sin respuesta)")
	case reply != "":
		for index, line := range strings.Split(reply, "\n") {
			line = strings.TrimRight(line, "\r")
			if index == 0 {
				cmd.Printf("bot> %s\n", line)
				continue
			}
			cmd.Printf("     %s\n", line)
		}
	}
	if attachment := response.Attachment; attachment != nil {
		cmd.Printf("bot> [%s %s, %d bytes] %s\n", attachment.Kind, attachment.FileName, attachment.Size, attachment.Caption)
	}
}

type replayResult struct {
	TotalTurns int
	SentTurns  int
	Failures   int
}

// newChatReplayCommand re-sends the inbound side of a stored transcript,
// which reproduces a conversation against a fresh contact.
func newChatReplayCommand() *cobra.Command {
	var (
		fromChat   string
		connector  string
		toChat     string
		limit      int
		dryRun     bool
		timeoutSec int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the inbound messages of a stored transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			source := strings.TrimSpace(fromChat)
			if source == "" {
				return fmt.Errorf("--from-chat is required")
			}
			records, err := memorylog.Tail(cfg.TranscriptRoot, connector, source, limit)
			if err != nil {
				return fmt.Errorf("read transcript %s: %w", memorylog.Path(cfg.TranscriptRoot, connector, source), err)
			}
			target := strings.TrimSpace(toChat)
			if target == "" {
				target = source
			}

			var send func(ctx context.Context, text string) (adminclient.ChatResponse, error)
			if !dryRun {
				client, err := newAdminClientFromEnv(timeoutSec)
				if err != nil {
					return err
				}
				send = func(ctx context.Context, text string) (adminclient.ChatResponse, error) {
					return client.Chat(ctx, adminclient.ChatRequest{ChatID: target, DisplayName: "replay", Text: text})
				}
			}
			result := replayRecords(cmd, records, send, boundedTimeout(timeoutSec))
			cmd.Printf("replayed %d/%d turns, %d failures\n", result.SentTurns, result.TotalTurns, result.Failures)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromChat, "from-chat", "", "chat id whose transcript is replayed")
	cmd.Flags().StringVar(&connector, "connector", "whatsapp", "connector the transcript was recorded under")
	cmd.Flags().StringVar(&toChat, "to-chat", "", "chat id to replay as (defaults to --from-chat)")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum transcript entries to read")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the turns without sending them")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 120, "request timeout in seconds")
	return cmd
}

// replayRecords sends each inbound record through send; a nil send only
// prints the turns.
func replayRecords(cmd *cobra.Command, records []memorylog.Record, send func(context.Context, string) (adminclient.ChatResponse, error), timeout time.Duration) replayResult {
	var result replayResult
	for _, record := range records {
		if record.Direction != memorylog.DirectionInbound {
			continue
		}
		result.TotalTurns++
		cmd.Printf("tú> %s\n", compactLine(record.Text, 160))
		if send == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		response, err := send(ctx, record.Text)
		cancel()
		if err != nil {
			result.Failures++
			cmd.PrintErrf("replay failed: %v\n", err)
			continue
		}
		result.SentTurns++
		printBotReply(cmd, response)
	}
	return result
}

func newSendCommand() *cobra.Command {
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "send <chat-id> <message>",
		Short: "Send a message to a WhatsApp chat through the running bot",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAdminClientFromEnv(timeoutSec)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
			defer cancel()
			if err := client.Send(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			cmd.Println("enviado")
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 30, "request timeout in seconds")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show component health of the running bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAdminClientFromEnv(timeoutSec)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
			defer cancel()
			info, err := client.Info(ctx)
			if err != nil {
				return err
			}
			snapshot, err := client.Heartbeat(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("%s %s (%s) tz=%s\n", info.Name, info.Version, info.Environment, info.Timezone)
			if info.Contacts != nil {
				cmd.Printf("contactos: %d (bloqueados %d, ia %d, gastos %d)\n", info.Contacts.Total, info.Contacts.Blocked, info.Contacts.Groq, info.Contacts.Gastos)
			}
			cmd.Printf("estado general: %s\n", snapshot.Overall)
			for _, item := range snapshot.Components {
				line := fmt.Sprintf("  %-22s %-9s %s", item.Name, item.State, item.Message)
				if item.Error != "" {
					line += " (" + item.Error + ")"
				}
				cmd.Println(strings.TrimRight(line, " "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 10, "request timeout in seconds")
	return cmd
}

func newAdminClientFromEnv(timeoutSec int) (*adminclient.Client, error) {
	cfg := config.FromEnv()
	client, err := adminclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return client.WithTimeout(boundedTimeout(timeoutSec)), nil
}

// resolveChatID falls back to the configured admin phone.
func resolveChatID(chatID string) string {
	if trimmed := strings.TrimSpace(chatID); trimmed != "" {
		return trimmed
	}
	return config.FromEnv().AdminPhone
}

func boundedTimeout(input int) time.Duration {
	if input < 1 {
		input = 120
	}
	if input > 600 {
		input = 600
	}
	return time.Duration(input) * time.Second
}

func compactLine(input string, maxLen int) string {
	line := []rune(strings.Join(strings.Fields(strings.TrimSpace(input)), " "))
	if maxLen < 1 || len(line) <= maxLen {
		return string(line)
	}
	return strings.TrimSpace(string(line[:maxLen])) + "..."
}
