package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/mango-runner/internal/core"
	"github.com/vrsandeep/mango-runner/internal/jobs"
	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/registry"
)

func runnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runners",
		Short: "List loaded runners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				entries := app.Registry().List()
				if jsonMode {
					out := make([]map[string]any, 0, len(entries))
					for _, e := range entries {
						out = append(out, map[string]any{
							"id":          e.Manifest.ID,
							"name":        e.Manifest.Name,
							"version":     e.Manifest.Version,
							"environment": e.Runner.Backend(),
							"state":       e.Runner.State().String(),
							"intents":     e.Runner.Intents(),
						})
					}
					return printJSON(out)
				}
				if len(entries) == 0 {
					fmt.Printf("No runners found in %s\n", app.Config().Runners.Path)
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tVERSION\tENV\tSTATE")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Manifest.ID, e.Manifest.Name, e.Manifest.Version, e.Runner.Backend(), e.Runner.State())
				}
				return w.Flush()
			})
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Check library entries for new chapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				report, err := app.Registry().UpdateScan(cmd.Context(), jobs.ScanOptions(app.Config()))
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(report)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUNNER\tCHECKED\tUPDATES\tERROR")
				for _, r := range report.Runners {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.RunnerID, r.Checked, r.Updates, r.Error)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Printf("Found %d new chapters in %s.\n", report.Total, report.Duration)
				return nil
			})
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Find the runner that handles a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				route, err := app.Registry().Route(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(route)
				}
				switch route.Kind {
				case registry.RouteUnresolved:
					fmt.Println("No runner recognises this URL.")
				default:
					for _, m := range route.Matches {
						fmt.Printf("%s\t%s\n", m.RunnerID, m.Content.ContentID)
					}
					if route.Kind == registry.RouteAmbiguous {
						fmt.Printf("%d runners match this URL.\n", len(route.Matches))
					}
				}
				return nil
			})
		},
	}
}

func directoryCmd() *cobra.Command {
	var (
		query string
		page  int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "directory <runner>",
		Short: "Browse a runner's directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				run, err := app.Registry().Get(args[0])
				if err != nil {
					return err
				}
				req := models.DirectoryRequest{Query: query, Page: page}
				show := func(result models.PagedResult[models.Highlight]) error {
					if jsonMode {
						return printJSON(result)
					}
					for _, h := range result.Results {
						fmt.Printf("%s\t%s\n", h.ID, h.Title)
					}
					return nil
				}
				if all {
					return run.Paginate(cmd.Context(), req, show)
				}
				result, err := run.Directory(cmd.Context(), req)
				if err != nil {
					return err
				}
				return show(result)
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search query")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page to fetch")
	cmd.Flags().BoolVar(&all, "all", false, "Walk every page from --page on")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <bundle-dir>",
		Short: "Check a runner bundle's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := registry.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if jsonMode {
				return printJSON(m)
			}
			fmt.Printf("%s %s (%s, api %s) is valid.\n", m.ID, m.Version, m.Environment, m.APIVersion)
			return nil
		},
	}
}

func repoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage runner repositories",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <url>",
		Short: "Register a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				repo, err := app.Repositories().AddRepository(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Added repository %d: %s\n", repo.ID, repo.Name)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "install <repository-id> <runner-id>",
		Short: "Install a runner from a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid repository id %q", args[0])
			}
			return withApp(func(app *core.App) error {
				run, err := app.Repositories().Install(cmd.Context(), repoID, args[1])
				if err != nil {
					return err
				}
				fmt.Printf("Installed %s (%s)\n", run.ID(), run.Info().Name)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "updates",
		Short: "List runners with newer versions available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				updates, err := app.Repositories().CheckForUpdates(cmd.Context())
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(updates)
				}
				for _, u := range updates {
					fmt.Printf("%s\t%s -> %s\n", u.RunnerID, u.InstalledVersion, u.AvailableVersion)
				}
				return nil
			})
		},
	})
	return cmd
}
