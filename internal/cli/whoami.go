package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chat-app-client/internal/auth"
	"chat-app-client/internal/logging"
)

var whoamiCheck []string

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().StringSliceVar(&whoamiCheck, "check", nil, "permissions to verify with the backend")
}

type whoamiResult struct {
	AgentID     string          `json:"agent_id"`
	Email       string          `json:"email,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Expired     bool            `json:"expired"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the agent behind the configured token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		claims, err := auth.Inspect(appConfig.API.Token, time.Now())
		if err != nil && !errors.Is(err, auth.ErrTokenExpired) {
			return err
		}
		res := whoamiResult{
			AgentID: claims.AgentID,
			Email:   claims.Email,
			Expired: errors.Is(err, auth.ErrTokenExpired),
		}
		if !claims.ExpiresAt.IsZero() {
			exp := claims.ExpiresAt
			res.ExpiresAt = &exp
		}

		if len(whoamiCheck) > 0 {
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			gate := auth.NewGate(api, time.Minute, logging.Component("auth"))
			res.Permissions = make(map[string]bool, len(whoamiCheck))
			for _, perm := range whoamiCheck {
				ok, err := gate.Allowed(commandContext(cmd), perm)
				if err != nil {
					return fmt.Errorf("check %s: %w", perm, err)
				}
				res.Permissions[perm] = ok
			}
		}

		if jsonOutput {
			return writeJSON(os.Stdout, res)
		}
		fmt.Fprintf(os.Stdout, "agent:   %s\n", res.AgentID)
		if res.Email != "" {
			fmt.Fprintf(os.Stdout, "email:   %s\n", res.Email)
		}
		if res.ExpiresAt != nil {
			state := "valid"
			if res.Expired {
				state = "expired"
			}
			fmt.Fprintf(os.Stdout, "expires: %s (%s)\n", formatTime(*res.ExpiresAt), state)
		}
		for _, perm := range whoamiCheck {
			fmt.Fprintf(os.Stdout, "%s: %t\n", perm, res.Permissions[perm])
		}
		return nil
	},
}
