package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"partnerline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var authCfg server.AuthConfig
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serves the Partnerline API and delivers events to configured webhooks.
Bearer tokens are HS256 JWTs signed with PARTNERLINE_JWT_SECRET; API keys from 'pl apikey create' work without it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg.JWTSecret = viper.GetString("jwt-secret")
			if authCfg.JWTSecret == "" && authCfg.EnableDevLogin {
				return fmt.Errorf("PARTNERLINE_JWT_SECRET is required for --dev-login")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg, Logger: rt.Log})
				if err != nil {
					return err
				}
				if authCfg.JWTSecret == "" {
					rt.Log.Warn("PARTNERLINE_JWT_SECRET not set, bearer auth disabled")
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					rt.Log.Info("serving partnerline api", zap.String("addr", addr), zap.String("base_path", basePath))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				g.Go(func() error {
					return server.NewDispatcher(rt.Engine.Repo, rt.Engine.Config.Webhooks, rt.Log.Named("webhooks")).Run(gctx)
				})
				fmt.Printf("Serving Partnerline API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n", addr, basePath, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&authCfg.AllowLegacyActorHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (local development)")
	cmd.Flags().BoolVar(&authCfg.EnableDevLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}
