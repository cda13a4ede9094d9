package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chat-app-client/internal/sessionstore"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsForgetCmd)

	sessionsCmd.PersistentFlags().String("store", "", "session store backend (memory, redis, dynamodb)")
	sessionsForgetCmd.Flags().String("source", "", "widget source tag")
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored widget sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored widget sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		store, closeStore, err := sessionstore.Open(ctx, appConfig.Widget)
		if err != nil {
			return err
		}
		defer closeStore()

		lister, ok := store.(sessionstore.Lister)
		if !ok {
			return fmt.Errorf("store %q cannot list sessions", appConfig.Widget.Store)
		}
		entries, err := lister.List(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, entries)
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Key, e.Value, e.UpdatedAt})
		}
		return writeTable(os.Stdout, []string{"KEY", "CONVERSATION", "UPDATED"}, rows)
	},
}

var sessionsForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Drop the stored conversation for --source on --base-url",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		store, closeStore, err := sessionstore.Open(ctx, appConfig.Widget)
		if err != nil {
			return err
		}
		defer closeStore()

		key := sessionstore.Key(appConfig.API.BaseURL, appConfig.Widget.Source)
		if err := store.Delete(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "forgot %s\n", key)
		return nil
	},
}
