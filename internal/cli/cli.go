// Package cli holds what the command binaries share: config flags, signal
// handling, exit codes and output helpers.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agentic-rag/internal/config"
)

// #region flags

// ConfigFlags are the persistent flags every binary accepts.
type ConfigFlags struct {
	File   string
	DotEnv string
}

// Bind registers the flags on cmd and its children.
func (f *ConfigFlags) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.File, "config", "c", "", "YAML config file layered over defaults")
	cmd.PersistentFlags().StringVar(&f.DotEnv, "env-file", ".env", "dotenv file loaded before the environment is read (missing is fine)")
}

// Load reads defaults, the config file and the environment.
func (f *ConfigFlags) Load() (*config.Config, error) {
	return config.Load(config.Options{File: f.File, DotEnv: f.DotEnv})
}

// #endregion flags

// #region exit

// ExitError carries a process exit code through cobra's error return.
// A nil Err exits silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exit wraps err with code.
func Exit(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// Execute runs root under a context cancelled by SIGINT/SIGTERM and exits
// the process with the code the command asked for.
func Execute(root *cobra.Command) {
	root.SilenceUsage = true
	root.SilenceErrors = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	os.Exit(code(err, os.Stderr))
}

func code(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintf(stderr, "error: %v\n", ee.Err)
		}
		return ee.Code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

// #endregion exit

// #region output

// PrintJSON writes v indented.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ShortID truncates an ID for table display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Truncate shortens s to n runes, marking the cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// #endregion output
