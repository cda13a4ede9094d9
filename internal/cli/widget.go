package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
	"chat-app-client/internal/registry/message"
	"chat-app-client/internal/sessionstore"
	"chat-app-client/internal/widget"
)

var widgetForget bool

func init() {
	rootCmd.AddCommand(widgetCmd)

	widgetCmd.Flags().String("source", "", "widget source tag")
	widgetCmd.Flags().String("store", "", "session store backend (memory, redis, dynamodb)")
	widgetCmd.Flags().BoolVar(&widgetForget, "new", false, "forget the stored conversation and start a new one")
}

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Chat as a website visitor",
	Long: `Simulate the embedded widget: resume or create the visitor's
conversation, print agent replies, and send lines typed on stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api, err := newAPIClient()
		if err != nil {
			return err
		}
		store, closeStore, err := sessionstore.Open(ctx, appConfig.Widget)
		if err != nil {
			return err
		}
		defer closeStore()

		factory := func(convUUID string) (widget.Socket, error) {
			return newSocket(model.SenderCustomer, convUUID)
		}
		session, err := widget.New(
			widget.Config{BaseURL: appConfig.API.BaseURL, Source: appConfig.Widget.Source},
			api, store, factory,
			widget.Options{PageSize: appConfig.Paging.MessagePageSize, Logger: logging.Component("widget")},
		)
		if err != nil {
			return err
		}
		if widgetForget {
			if err := session.Forget(ctx); err != nil {
				return err
			}
		}

		out := os.Stdout
		var (
			printMu sync.Mutex
			seen    int
		)
		session.Registry().Subscribe(func(c message.Change) error {
			printMu.Lock()
			defer printMu.Unlock()
			msgs := session.Messages()
			if c.Kind == message.ChangeReplaced || seen > len(msgs) {
				seen = 0
			}
			printMessages(out, msgs[seen:])
			seen = len(msgs)
			return nil
		})

		if err := session.Start(ctx); err != nil {
			return err
		}
		defer session.Stop()
		fmt.Fprintf(out, "-- conversation %s\n", session.ConversationUUID())

		lines := readLines(ctx, os.Stdin)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if line == "" {
					continue
				}
				if _, err := session.Send(ctx, line); err != nil {
					printErr("error: %v", err)
				}
			}
		}
	},
}
