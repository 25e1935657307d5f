package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taurusgroup/confidential-identities/internal/config"
	"github.com/taurusgroup/confidential-identities/pkg/api"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API of a node.",
		Long: `Serve the HTTP API of a node: key mapping lookups, and a transaction
store whose outputs are shown with the owners of their participants.

This will look for config files with default names
in the current directory if not specified differently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := conf.Logger.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			seed, err := conf.Node.LoadSeed()
			if err != nil {
				return err
			}
			km, err := keys.NewStore(seed)
			if err != nil {
				return err
			}
			self, err := party.New(party.ID(conf.Node.ID), km.Identity())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg, closeRegistry, err := openRegistry(ctx, conf.Registry)
			if err != nil {
				return err
			}
			defer closeRegistry()
			if err = identity.SeedNetworkMap(ctx, reg, self); err != nil {
				return err
			}
			store, closeStore, err := openStore(conf.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := &http.Server{
				Addr:              conf.API.Address,
				Handler:           api.New(self, reg, store, log).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().Str("address", srv.Addr).Str("node", string(self.ID)).Stringer("owning_key", self.OwningKey).Msg("serving")
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdown)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigFile, "path to the configuration file")
	return cmd
}
