package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pavel-fokin/filehub/internal/config"
	"github.com/pavel-fokin/filehub/internal/files"
	"github.com/pavel-fokin/filehub/internal/server"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var user, group string

	cmd := &cobra.Command{
		Use:           "filehub",
		Short:         "Locate and deliver server-local files to chat users",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "Requester user id")
	cmd.PersistentFlags().StringVar(&group, "group", "", "Requester group id")

	identity := func() files.Identity {
		return files.Identity{UserID: user, GroupID: group}
	}

	cmd.AddCommand(
		serveCmd(),
		indexCmd(),
		searchCmd(identity),
		sendCmd(identity),
		findCmd(identity),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("filehub version %s\n", Version)
			},
		},
	)
	return cmd
}

// withApp loads the configuration, wires the service and runs fn
func withApp(fn func(a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and the pull endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if a.cfg.AdminToken == "" {
					return errors.New("FILEHUB_ADMIN_TOKEN is required to serve")
				}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if a.cfg.WatchRegistry {
					go func() {
						if err := a.registry.Watch(ctx); err != nil {
							slog.Error("Registry watcher stopped", "error", err)
						}
					}()
				}

				srv := server.New(a.cfg, a.service)
				errCh := make(chan error, 1)
				go func() {
					slog.Info("Starting server", "addr", srv.Addr)
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
}

func indexCmd() *cobra.Command {
	var (
		images    bool
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Add unindexed files under the root to the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				mode := files.ScanAll
				if images {
					mode = files.ScanImages
				}
				added, path, err := a.service.Index(mode, recursive)
				if err != nil {
					return err
				}
				fmt.Printf("indexed %d new entries into %s\n", added, path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&images, "images", false, "Only index image files")
	cmd.Flags().BoolVar(&recursive, "recursive", true, "Descend into subdirectories")
	return cmd
}

func searchCmd(identity func() files.Identity) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				results, err := a.service.SearchLocalFiles(strings.Join(args, " "), identity(), limit)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"results": results})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	return cmd
}

func sendCmd(identity func() files.Identity) *cobra.Command {
	return &cobra.Command{
		Use:   "send <id>",
		Short: "Resolve the delivery of a file by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				plan, err := a.service.SendByID(args[0], identity())
				if err != nil {
					return err
				}
				return printJSON(plan)
			})
		},
	}
}

func findCmd(identity func() files.Identity) *cobra.Command {
	return &cobra.Command{
		Use:   "find <query>",
		Short: "Resolve the delivery of the best match for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				plan, err := a.service.FindAndSend(strings.Join(args, " "), identity())
				if err != nil {
					return err
				}
				return printJSON(plan)
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
