// Command runnerctl drives the runner host from the command line without
// starting the web server. It opens the configured database and runners
// directory directly.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/core"
)

var (
	rootCmd  *cobra.Command
	jsonMode bool
)

func init() {
	rootCmd = &cobra.Command{
		Use:           "runnerctl",
		Short:         "Inspect and drive content runners",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "Print results as JSON")

	rootCmd.AddCommand(runnersCmd(), scanCmd(), resolveCmd(), directoryCmd(), validateCmd(), repoCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp opens the app and loads every installed runner.
func withApp(fn func(app *core.App) error) error {
	app, err := core.New()
	if err != nil {
		return err
	}
	defer app.Close()
	if _, err := app.LoadRunners(); err != nil {
		return err
	}
	return fn(app)
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
