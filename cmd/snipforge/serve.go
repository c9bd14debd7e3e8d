package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/snipforge"
	"pkt.systems/snipforge/httpapi"
	"pkt.systems/snipforge/internal/appconfig"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the snippet generation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
				return fmt.Errorf("state dir: %w", err)
			}

			server, err := snipforge.New(snipforge.ServerConfig{
				HTTP: httpapi.Config{
					Addr:     cfg.HTTP.Addr,
					BaseURL:  cfg.HTTP.BaseURL,
					BasePath: cfg.HTTP.BasePath,
				},
				PasswordFile:  cfg.Auth.PasswordFile,
				QuotaFile:     filepath.Join(cfg.StateDir, "usage.json"),
				QuotaUses:     cfg.Quota.Uses,
				ShareKeyStore: cfg.Share.KeyStorePath,
				ShareDir:      cfg.Share.Dir,
				ProviderDelay: time.Duration(cfg.Provider.DelayMS) * time.Millisecond,
			}, snipforge.ServerDeps{Logger: logger})
			if err != nil {
				return err
			}

			if err := server.Start(cmd.Context()); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
