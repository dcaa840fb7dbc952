package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/bobmcallan/dcim-mcp/internal/common"
	"github.com/bobmcallan/dcim-mcp/internal/config"
	"github.com/bobmcallan/dcim-mcp/internal/session"
	"github.com/bobmcallan/dcim-mcp/internal/telemetry"
	"github.com/bobmcallan/dcim-mcp/internal/upstream"
)

// options holds command-line flags for the root command.
type options struct {
	configFile string
	http       bool
	port       string
	apiURL     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dcim-mcp: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "dcim-mcp",
		Short: "MCP server for the DCIM rack, power, project and ticket API",
		Long: "dcim-mcp exposes the DCIM REST API as MCP tools. By default it speaks MCP over\n" +
			"stdin/stdout; diagnostics go to stderr.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "dcim-mcp.toml", "Path to config file (.toml, .yaml or .yml)")
	cmd.Flags().BoolVar(&opts.http, "http", false, "Serve streamable HTTP instead of stdio")
	cmd.Flags().StringVar(&opts.port, "port", "", "Port for the streamable HTTP transport")
	cmd.Flags().StringVar(&opts.apiURL, "api-url", "", "Base URL of the DCIM REST API")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			config.LoadVersionFromFile()
			fmt.Fprintf(cmd.OutOrStdout(), "dcim-mcp %s\n", config.GetFullVersion())
		},
	}
}

func run(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadFromFile(opts.configFile)
	if err != nil {
		return err
	}
	config.ApplyFlagOverrides(cfg, opts.port, opts.apiURL)
	config.LoadVersionFromFile()

	logger := common.NewLoggerFromConfig(cfg.Logging)

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	var store transport.TokenStore
	if cfg.Auth.TokenFile != "" {
		store = session.NewFileTokenStore(cfg.Auth.TokenFile)
	}
	sess := session.New(store, logger)
	if err := sess.Restore(ctx); err != nil {
		logger.Warn().Err(err).Str("token_file", cfg.Auth.TokenFile).Msg("Failed to restore persisted token")
	}

	client := upstream.NewClient(cfg.API, sess, logger)

	mcpServer, err := newMCPServer(cfg, client, sess, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", config.GetVersion()).
		Str("api_url", client.BaseURL()).
		Bool("http", opts.http).
		Msg("Starting DCIM MCP server")

	if !opts.http {
		// Stdio transport: reads stdin, writes stdout.
		errLogger := stdlog.New(os.Stderr, "mcp: ", stdlog.LstdFlags)
		if err := server.ServeStdio(mcpServer, server.WithErrorLogger(errLogger)); err != nil {
			return fmt.Errorf("stdio server error: %w", err)
		}
		return nil
	}

	httpServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithStateLess(true),
	)
	logger.Info().Str("port", cfg.Server.Port).Msg("Starting MCP Streamable HTTP")
	if err := httpServer.Start(":" + cfg.Server.Port); err != nil {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// newMCPServer creates the MCP server with every tool registered.
func newMCPServer(cfg *config.Config, client *upstream.Client, sess *session.Session, logger *common.Logger) (*server.MCPServer, error) {
	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		config.GetVersion(),
		server.WithToolCapabilities(true),
	)

	if err := registerTools(mcpServer, toolRegistrations(cfg, client, sess, logger), logger); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return mcpServer, nil
}
