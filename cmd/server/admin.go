package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/campus/pkg/server"
	"github.com/NicolasHaas/campus/pkg/version"
)

func seedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import users, books, products and courses from YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			db, svc, err := openServices(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := server.LoadSeedFile(cmd.Context(), file, svc)
			if err != nil {
				return err
			}
			fmt.Printf("created %d, skipped %d\n", res.Created, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func exportUsersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-users",
		Short: "Print every account as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			db, svc, err := openServices(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := server.ExportUsersYAML(cmd.Context(), svc.Accounts)
			if err != nil {
				return fmt.Errorf("export users: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			info := version.Get()
			fmt.Printf("  Version:    %s\n", info.String())
			fmt.Printf("  Commit:     %s\n", info.Commit)
			fmt.Printf("  Built:      %s\n", info.Date)
			fmt.Printf("  Go version: %s\n", info.GoVersion)
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
