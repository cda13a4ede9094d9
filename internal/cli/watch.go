package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chat-app-client/internal/desk"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
	"chat-app-client/internal/registry/conversation"
	"chat-app-client/internal/registry/message"
	"chat-app-client/internal/relay"
	"chat-app-client/internal/sessionstore"
	"chat-app-client/internal/transport"
)

var (
	watchOpen   string
	watchStatus string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchOpen, "open", "", "conversation uuid to open on start")
	watchCmd.Flags().StringVar(&watchStatus, "status", "", "only list conversations with this status")
	watchCmd.Flags().String("relay-redis", "", "republish envelopes on this Redis address")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run an agent desk session",
	Long: `Run an agent desk session: keep the conversation list live, print
incoming envelopes, and send lines typed on stdin to the open conversation.

Commands on stdin:
  /open <uuid>   make a conversation active
  /more          load older history of the active conversation
  /list          print the conversation list
  /close <id>    close a conversation
  /reopen <id>   reopen a conversation`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api, err := newAPIClient()
		if err != nil {
			return err
		}
		sock, err := newSocket(model.SenderAgent, "")
		if err != nil {
			return err
		}

		session, err := desk.New(api, sock, desk.Options{
			Token:                appConfig.API.Token,
			Status:               model.ConversationStatus(watchStatus),
			ConversationPageSize: appConfig.Paging.ConversationPageSize,
			MessagePageSize:      appConfig.Paging.MessagePageSize,
			Logger:               logging.Component("desk"),
		})
		if err != nil {
			return err
		}

		if appConfig.Relay.RedisURL != "" {
			client := sessionstore.NewRedisClient(appConfig.Relay.RedisURL, appConfig.Relay.RedisPass)
			defer client.Close()
			r := relay.New(client, appConfig.Relay.Prefix, logging.Component("relay"))
			sock.OnMessage(r.OnFrame)
		}

		out := os.Stdout
		sock.OnMessage(func(e transport.MessageEvent) error {
			fmt.Fprintf(out, "<< %s\n", e.Data)
			return nil
		})
		sock.OnClose(func(e transport.CloseEvent) error {
			if !e.Intentional {
				fmt.Fprintf(out, "-- disconnected (%d %s)\n", e.Code, e.Reason)
			}
			return nil
		})
		sock.OnOpen(func(e transport.OpenEvent) error {
			fmt.Fprintf(out, "-- connected session=%s reconnect=%t\n", e.SessionID, e.Reconnect)
			return nil
		})
		session.Messages().Subscribe(func(c message.Change) error {
			if c.Kind == message.ChangeDelivery && c.ConversationUUID == session.Active() {
				printDelivery(out, session.Messages().Messages(c.ConversationUUID))
			}
			return nil
		})

		if err := session.Start(ctx); err != nil {
			return err
		}
		defer session.Stop()

		printConversations(out, session.Conversations())
		if watchOpen != "" {
			if err := session.Open(ctx, watchOpen); err != nil {
				logger.Warn("open conversation failed", zap.String("conversation_uuid", watchOpen), zap.Error(err))
			}
			printMessages(out, session.Messages().Messages(watchOpen))
		}

		lines := readLines(ctx, os.Stdin)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := handleDeskLine(ctx, out, session, line); err != nil {
					printErr("error: %v", err)
				}
			}
		}
	},
}

func handleDeskLine(ctx context.Context, out io.Writer, session *desk.Session, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := session.Send(ctx, line)
		return err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/open":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /open <uuid>")
		}
		if err := session.Open(ctx, fields[1]); err != nil {
			return err
		}
		printMessages(out, session.Messages().Messages(fields[1]))
	case "/more":
		if err := session.LoadMore(ctx); err != nil {
			return err
		}
		printMessages(out, session.Messages().Messages(session.Active()))
	case "/list":
		printConversations(out, session.Conversations())
	case "/close", "/reopen":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <id>", fields[0])
		}
		id, err := parseID(fields[1])
		if err != nil {
			return err
		}
		if fields[0] == "/close" {
			return session.CloseConversation(ctx, id)
		}
		return session.ReopenConversation(ctx, id)
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
	return nil
}

func printConversations(out io.Writer, reg *conversation.Registry) {
	if msg := reg.Err(); msg != "" {
		fmt.Fprintf(out, "-- conversation list unavailable: %s\n", msg)
		return
	}
	rows := [][]string{}
	for _, c := range reg.Snapshot() {
		rows = append(rows, []string{fmt.Sprint(c.ID), c.UUID, string(c.Status), truncate(c.LastMessage, 40)})
	}
	_ = writeTable(out, []string{"ID", "UUID", "STATUS", "LAST MESSAGE"}, rows)
}

func printMessages(out io.Writer, msgs []model.Message) {
	for _, m := range msgs {
		fmt.Fprintf(out, "[%s] %-8s %s%s\n", formatTime(m.CreatedAt), m.Sender, m.Content, deliverySuffix(m))
	}
}

func printDelivery(out io.Writer, msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}
	m := msgs[len(msgs)-1]
	fmt.Fprintf(out, "-- %d %s%s\n", m.ID, truncate(m.Content, 40), deliverySuffix(m))
}

func deliverySuffix(m model.Message) string {
	switch m.Delivery {
	case model.DeliveryPending:
		return " (sending)"
	case model.DeliveryFailed:
		return " (failed: " + m.DeliveryError + ")"
	default:
		return ""
	}
}

// readLines streams stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
