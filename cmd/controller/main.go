package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/app"
	"github.com/danielpatrickdp/agentic-rag/internal/cli"
)

// #region main

var (
	flags   cli.ConfigFlags
	jsonOut bool
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "controller",
		Short: "Ask questions against the indexed documents, model knowledge or the web",
		Long: `Runs the query pipeline interactively. Each line is one query; the answer is
printed with its source, citations and gate scores.

  controller                    # interactive prompt
  controller ask "what is X?"   # one query, then exit
  controller ask --json "..."   # full request state as JSON`,
		Args: cobra.NoArgs,
		RunE: runREPL,
	}
	flags.Bind(root)
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print the full request state as JSON")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show gate scores and attempted tools")

	root.AddCommand(&cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one query and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	})

	cli.Execute(root)
}

// #endregion main

// #region run

func open(ctx context.Context) (*app.App, error) {
	cfg, err := flags.Load()
	if err != nil {
		return nil, cli.Exit(2, err)
	}
	return app.Build(ctx, cfg, app.NewLogger(cfg), app.Backends{})
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))

	st := a.Orchestrator.Handle(cmd.Context(), strings.Join(args, " "))
	if err := render(cmd.OutOrStdout(), st, jsonOut, verbose); err != nil {
		return err
	}
	if !st.Valid || st.Error != "" {
		return cli.Exit(1, nil)
	}
	return nil
}

func runREPL(cmd *cobra.Command, _ []string) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Agentic RAG ready.")
	fmt.Fprintf(out, "  LLM: %s/%s | Index: %s | Search: %s\n",
		a.Config.LLM.Provider, a.Config.LLM.Model, a.Config.Index.Backend, a.Config.Search.Provider)
	fmt.Fprintln(out, "Type a question (or 'quit' to exit):")
	return repl(cmd.Context(), cmd.InOrStdin(), out, a.Orchestrator)
}

func repl(ctx context.Context, in io.Reader, out io.Writer, p pipeline) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		st := p.Handle(ctx, line)
		if err := render(out, st, jsonOut, verbose); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// #endregion run
