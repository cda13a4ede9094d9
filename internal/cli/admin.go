package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"chat-app-client/internal/dto"
)

var (
	sourceName        string
	sourceDescription string
	agentName         string
	agentEmail        string
	agentDisabled     bool
)

func init() {
	rootCmd.AddCommand(sourcesCmd, configCmd, agentsCmd)

	sourcesCmd.AddCommand(sourcesListCmd, sourcesCreateCmd, sourcesDeleteCmd)
	sourcesCreateCmd.Flags().StringVar(&sourceName, "name", "", "display name (defaults to the tag)")
	sourcesCreateCmd.Flags().StringVar(&sourceDescription, "description", "", "free-form description")

	configCmd.AddCommand(configGetCmd, configSetCmd, configDeleteCmd)

	agentsCmd.AddCommand(agentsListCmd, agentsSetCmd)
	agentsSetCmd.Flags().StringVar(&agentName, "name", "", "display name")
	agentsSetCmd.Flags().StringVar(&agentEmail, "email", "", "email address")
	agentsSetCmd.Flags().BoolVar(&agentDisabled, "disabled", false, "disable the agent")
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage widget sources",
}

var sourcesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sources",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		sources, err := api.ListSources(commandContext(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, sources)
		}
		rows := make([][]string, 0, len(sources))
		for _, s := range sources {
			rows = append(rows, []string{strconv.FormatInt(s.ID, 10), s.Tag, s.Name, truncate(s.Description, 40)})
		}
		return writeTable(os.Stdout, []string{"ID", "TAG", "NAME", "DESCRIPTION"}, rows)
	},
}

var sourcesCreateCmd = &cobra.Command{
	Use:   "create <tag>",
	Short: "Create a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		name := sourceName
		if name == "" {
			name = args[0]
		}
		src, err := api.CreateSource(commandContext(cmd), dto.SourceRequest{
			Name:        name,
			Tag:         args[0],
			Description: sourceDescription,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, src)
		}
		fmt.Fprintf(os.Stdout, "created source %d (%s)\n", src.ID, src.Tag)
		return nil
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source",
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
		if err := api.DeleteSource(commandContext(cmd), id); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "deleted source %d\n", id)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write backend configuration values",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		value, err := api.GetConfig(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, dto.ConfigValue{Key: args[0], Value: value})
		}
		fmt.Fprintln(os.Stdout, value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		return api.SetConfig(commandContext(cmd), args[0], args[1])
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		return api.DeleteConfig(commandContext(cmd), args[0])
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agents",
}

var agentsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List agents",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		agents, err := api.ListAgents(commandContext(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, agents)
		}
		rows := make([][]string, 0, len(agents))
		for _, a := range agents {
			rows = append(rows, []string{strconv.FormatInt(a.ID, 10), a.Username, a.Name, a.Email, strconv.FormatBool(a.Enabled)})
		}
		return writeTable(os.Stdout, []string{"ID", "USERNAME", "NAME", "EMAIL", "ENABLED"}, rows)
	},
}

var agentsSetCmd = &cobra.Command{
	Use:   "set <username>",
	Short: "Create or update an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		agent, err := api.SetAgent(commandContext(cmd), dto.SetAgentRequest{
			Username: args[0],
			Name:     agentName,
			Email:    agentEmail,
			Enabled:  !agentDisabled,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, agent)
		}
		fmt.Fprintf(os.Stdout, "agent %s (id %d) enabled=%t\n", agent.Username, agent.ID, agent.Enabled)
		return nil
	},
}
