package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chat-app-client/internal/dto"
	"chat-app-client/internal/model"
	"chat-app-client/internal/registry/message"
)

var (
	messagesPages int
	sendAs        string
)

func init() {
	rootCmd.AddCommand(messagesCmd, sendCmd)

	messagesCmd.Flags().IntVar(&messagesPages, "pages", 1, "number of pages of history to load")
	sendCmd.Flags().StringVar(&sendAs, "as", string(model.SenderAgent), "sender role (agent, customer)")
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-uuid>",
	Short: "Show the message history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convUUID := args[0]
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)

		reg := message.New(api, message.Options{PageSize: appConfig.Paging.MessagePageSize})
		if err := reg.Fetch(ctx, convUUID); err != nil {
			return err
		}
		for i := 1; i < messagesPages && reg.PageState(convUUID).HasMore; i++ {
			if err := reg.LoadMore(ctx, convUUID); err != nil {
				return err
			}
		}

		msgs := reg.Messages(convUUID)
		if jsonOutput {
			return writeJSON(os.Stdout, msgs)
		}
		rows := make([][]string, 0, len(msgs))
		for _, m := range msgs {
			rows = append(rows, []string{
				strconv.FormatInt(m.ID, 10),
				formatTime(m.CreatedAt),
				string(m.Sender),
				truncate(m.Content, 80),
			})
		}
		if err := writeTable(os.Stdout, []string{"ID", "AT", "FROM", "CONTENT"}, rows); err != nil {
			return err
		}
		if reg.PageState(convUUID).HasMore {
			fmt.Fprintln(os.Stdout, "(older messages available, use --pages)")
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <conversation-uuid> <text...>",
	Short: "Send a message to a conversation",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		role := model.SenderRole(sendAs)
		if !role.Valid() {
			return fmt.Errorf("invalid --as %q", sendAs)
		}
		text := strings.TrimSpace(strings.Join(args[2:], " "))
		if text == "" {
			return errors.New("message text is empty")
		}

		api, err := newAPIClient()
		if err != nil {
			return err
		}
		sent, err := api.SendMessage(commandContext(cmd), dto.SendMessageRequest{
			ConversationID:   id,
			ConversationUUID: args[1],
			Content:          text,
			Sender:           role,
			ContentType:      model.ContentText,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, sent)
		}
		fmt.Fprintf(os.Stdout, "sent message %d\n", sent.ID)
		return nil
	},
}
