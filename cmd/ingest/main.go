package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/app"
	"github.com/danielpatrickdp/agentic-rag/internal/cli"
	"github.com/danielpatrickdp/agentic-rag/internal/ingest"
)

// #region main

var (
	flags   cli.ConfigFlags
	dryRun  bool
	jsonOut bool
)

func main() {
	root := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Load .txt, .md and .pdf documents into the index",
		Long: `Splits documents into passages and writes them to the configured index.
Directories are walked recursively; unsupported files are skipped.
Re-ingesting a file replaces its passages.

  ingest docs/
  ingest --dry-run manual.pdf   # chunk only, report counts
  ingest --json a.md b.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: run,
	}
	flags.Bind(root)
	root.Flags().BoolVar(&dryRun, "dry-run", false, "chunk without writing to the index")
	root.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")

	cli.Execute(root)
}

// #endregion main

// #region run

func run(cmd *cobra.Command, args []string) error {
	cfg, err := flags.Load()
	if err != nil {
		return cli.Exit(2, err)
	}
	log := app.NewLogger(cfg)

	paths, err := expand(args)
	if err != nil {
		return cli.Exit(2, err)
	}
	if len(paths) == 0 {
		return cli.Exit(2, fmt.Errorf("no supported documents under %v", args))
	}

	var in *ingest.Ingester
	if dryRun {
		in, err = ingest.New(ingest.NewMemoryWriter(), app.IngestConfig(cfg), nil, log)
	} else {
		var closeIndex func() error
		in, closeIndex, err = app.OpenIngester(cmd.Context(), cfg, log)
		if err == nil {
			defer closeIndex()
		}
	}
	if err != nil {
		return err
	}

	res, err := in.IngestFiles(cmd.Context(), paths)
	if jsonOut {
		if perr := cli.PrintJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	} else {
		printTable(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return cli.Exit(1, nil)
	}
	return nil
}

// expand resolves args to supported files. Explicit files are kept even if
// unsupported so the result reports them; directories contribute only
// supported files.
func expand(args []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && ingest.Supported(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return out, nil
}

// #endregion run

// #region output

func printTable(w io.Writer, res ingest.Result) {
	fmt.Fprintf(w, "%-40s %6s %9s  %s\n", "SOURCE", "PAGES", "PASSAGES", "ERROR")
	for _, f := range res.Files {
		fmt.Fprintf(w, "%-40s %6d %9d  %s\n", cli.Truncate(f.Source, 40), f.Pages, f.Passages, f.Error)
	}
	fmt.Fprintf(w, "\n%d files, %d passages, %d failed\n", len(res.Files), res.Passages, res.Failed)
	if dryRun {
		fmt.Fprintln(w, "(dry run: nothing written)")
	}
}

// #endregion output
