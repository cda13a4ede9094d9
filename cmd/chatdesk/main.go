// Command chatdesk is the agent desk and widget client for the chat backend.
package main

import (
	"fmt"
	"os"

	"chat-app-client/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
