package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jp1648/portfolio/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portfolio",
		Short:         "Personal portfolio site",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newCatalogCmd(), newCacheCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Server.GinMode != "" {
				gin.SetMode(cfg.Server.GinMode)
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := newServer(a)
			if err != nil {
				return err
			}

			go func() {
				if _, err := a.tracker.Cleanup(ctx); err != nil {
					log.Printf("Error cleaning up old visitor data: %v", err)
				}
			}()

			srv := &http.Server{
				Addr:    ":" + cfg.Server.Port,
				Handler: s.routes(),
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on :%s", cfg.Server.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Println("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newCatalogCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "catalog [owner]",
		Short: "Print the project catalog as JSON",
		Long: `Print the project catalog as JSON.

Only the configured owner's catalog is cached. Any other owner is fetched
from GitHub on every run and never written to the cache.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := ""
			if len(args) == 1 {
				owner = args[0]
			}

			return withApp(cmd.Context(), func(a *app) error {
				out := struct {
					Source   string `json:"source"`
					Reason   string `json:"reason,omitempty"`
					Projects any    `json:"projects"`
				}{}

				if refresh {
					projects, err := a.catalog.Refresh(cmd.Context(), owner)
					if err != nil {
						return err
					}
					out.Source, out.Projects = "network", projects
				} else {
					res := a.catalog.Resolve(cmd.Context(), owner)
					out.Source, out.Projects = string(res.Source), res.Projects
					if res.Reason != nil {
						out.Reason = res.Reason.Error()
					}
					if res.Degraded() {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: GitHub unavailable, serving %s catalog\n", res.Source)
					}
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cache and fetch from GitHub")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the project catalog cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete the cached project catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.catalog.Purge(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "project cache purged")
				return nil
			})
		},
	})
	return cmd
}

func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
