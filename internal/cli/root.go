// Package cli implements the chatdesk command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/config"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
	"chat-app-client/internal/transport"
)

var (
	cfgFile    string
	jsonOutput bool

	appConfig  *config.Config
	logger     *zap.Logger
	metricsSrv *http.Server
)

var rootCmd = &cobra.Command{
	Use:           "chatdesk",
	Short:         "Agent desk and widget client for the chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownRuntime()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./chatdesk.yaml or $HOME/.config/chatdesk/chatdesk.yaml)")
	pf.String("base-url", "", "REST base URL, e.g. https://chat.example.com/api")
	pf.String("ws-url", "", "WebSocket URL (derived from --base-url when empty)")
	pf.String("token", "", "agent bearer token")
	pf.Duration("timeout", 0, "per-request timeout")
	pf.String("log-level", "", "logging level (debug, info, warn, error)")
	pf.String("log-format", "", "logging format (json, console)")
	pf.String("metrics-addr", "", "serve prometheus metrics on this address")
	pf.BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
}

var flagBindings = map[string]string{
	"api.base_url":        "base-url",
	"api.ws_url":          "ws-url",
	"api.token":           "token",
	"api.request_timeout": "timeout",
	"logging.level":       "log-level",
	"logging.format":      "log-format",
	"metrics.addr":        "metrics-addr",
	"widget.source":       "source",
	"widget.store":        "store",
	"relay.redis_url":     "relay-redis",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initRuntime(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	if err := loader.BindFlags(cmd.Flags(), flagBindings); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	l, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(l)
	logger = logging.Component("cli")
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config file", zap.String("config_file", used))
	}

	if cfg.Metrics.Addr != "" {
		startMetrics(cfg.Metrics.Addr)
	}
	return nil
}

func startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}

func shutdownRuntime() {
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
		metricsSrv = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

func newAPIClient() (*apiclient.Client, error) {
	return apiclient.New(apiclient.Options{
		BaseURL: appConfig.API.BaseURL,
		Token:   appConfig.API.Token,
		Timeout: appConfig.API.RequestTimeout,
		Logger:  logging.Component("apiclient"),
	})
}

func newSocket(role model.SenderRole, convUUID string) (*transport.Client, error) {
	wsURL, err := appConfig.API.ResolvedWebsocketURL()
	if err != nil {
		return nil, err
	}
	return transport.New(transport.Options{
		URL:              wsURL,
		ClientType:       role,
		ConversationUUID: convUUID,
		Policy:           appConfig.Reconnect.Policy(),
		Logger:           logging.Component("transport"),
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
