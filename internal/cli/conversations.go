package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/model"
)

var (
	conversationsStatus   string
	conversationsPage     int
	conversationsPageSize int
)

func init() {
	rootCmd.AddCommand(conversationsCmd, closeCmd, reopenCmd)

	conversationsCmd.Flags().StringVar(&conversationsStatus, "status", "", "filter by status (open, closed)")
	conversationsCmd.Flags().IntVar(&conversationsPage, "page", 1, "page number")
	conversationsCmd.Flags().IntVar(&conversationsPageSize, "page-size", 0, "page size (default from config)")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs", "ls"},
	Short:   "List conversations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := model.ConversationStatus(conversationsStatus)
		if status != "" && !status.Valid() {
			return fmt.Errorf("invalid --status %q (want open or closed)", conversationsStatus)
		}
		pageSize := conversationsPageSize
		if pageSize <= 0 {
			pageSize = appConfig.Paging.ConversationPageSize
		}

		api, err := newAPIClient()
		if err != nil {
			return err
		}
		page, err := api.ListConversations(commandContext(cmd), apiclient.ConversationQuery{
			Page:     conversationsPage,
			PageSize: pageSize,
			Status:   status,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(os.Stdout, page)
		}
		rows := make([][]string, 0, len(page.Items))
		for _, c := range page.Items {
			rows = append(rows, []string{
				strconv.FormatInt(c.ID, 10),
				c.UUID,
				string(c.Status),
				c.Source,
				truncate(c.Title, 30),
				truncate(c.LastMessage, 40),
				formatTime(c.LastMessageAt),
			})
		}
		return writeTable(os.Stdout, []string{"ID", "UUID", "STATUS", "SOURCE", "TITLE", "LAST MESSAGE", "AT"}, rows)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <conversation-id>",
	Short: "Close a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := api.CloseConversation(commandContext(cmd), id); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "conversation %d closed\n", id)
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <conversation-id>",
	Short: "Reopen a closed conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := api.ReopenConversation(commandContext(cmd), id); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "conversation %d reopened\n", id)
		return nil
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
