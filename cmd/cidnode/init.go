package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taurusgroup/confidential-identities/internal/config"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

func newInitCommand() *cobra.Command {
	var (
		dir   string
		id    string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file and a key seed.",
		Long: `Create a configuration file and a key seed for cidnode.

The seed determines the identity key of the node and every account key,
it must be kept secret and backed up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(dir, defaultConfigFile)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			conf := config.Default()
			conf.Node.ID = id
			if err := conf.Validate(); err != nil {
				return err
			}
			if err := conf.Save(path); err != nil {
				return err
			}

			seed, err := keys.GenerateSeed(rand.Reader)
			if err != nil {
				return err
			}
			store, err := keys.NewStore(seed)
			if err != nil {
				return err
			}
			conf.Node.SeedPath = filepath.Join(dir, conf.Node.SeedPath)
			if err = conf.Node.WriteSeed(seed); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nnode %s, owning key %s\n", path, id, store.Identity())
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the configuration to")
	cmd.Flags().StringVar(&id, "id", "node", "well-known name of the node")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration")
	return cmd
}
