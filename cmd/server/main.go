package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/app"
	"github.com/danielpatrickdp/agentic-rag/internal/cli"
	"github.com/danielpatrickdp/agentic-rag/internal/mcpserver"
	"github.com/danielpatrickdp/agentic-rag/internal/server"
)

// #region main

var (
	flags    cli.ConfigFlags
	addr     string
	stdioMCP bool
)

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "Serve the query pipeline over HTTP, or as an MCP tool on stdio",
		Long: `Serves the pipeline.

  server                 # HTTP API on server.addr (SERVER_ADDR)
  server --addr :9090    # override the listen address
  server --mcp           # MCP answer_query tool on stdin/stdout`,
		Args: cobra.NoArgs,
		RunE: run,
	}
	flags.Bind(root)
	root.Flags().StringVar(&addr, "addr", "", "listen address, overrides config")
	root.Flags().BoolVar(&stdioMCP, "mcp", false, "serve the MCP tool on stdio instead of HTTP")

	cli.Execute(root)
}

// #endregion main

// #region run

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := flags.Load()
	if err != nil {
		return cli.Exit(2, err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	log := app.NewLogger(cfg)

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, log, app.Backends{})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if stdioMCP {
		srv, err := mcpserver.New(a.Orchestrator, app.Version, log)
		if err != nil {
			return err
		}
		return mcpserver.ServeStdio(ctx, srv)
	}

	deps := server.Deps{
		Pipeline: a.Orchestrator,
		Ingester: a.Ingester,
		Metrics:  promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}),
		Log:      log,
	}
	// a nil *store.Store must stay a nil interface
	if a.Store != nil {
		deps.Store = a.Store
	}
	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ServiceName:     cfg.Telemetry.ServiceName,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		Eval:            a.EvalConfig(),
		OutcomeHalfLife: cfg.Server.OutcomeHalfLife,
	}, deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// #endregion run
