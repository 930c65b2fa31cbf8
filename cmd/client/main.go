// Command campusctl is a command-line client for the campus server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/campus/pkg/client"
	"github.com/NicolasHaas/campus/pkg/logging"
)

type rootOptions struct {
	settingsPath string
	server       string
	login        string
	password     string
	useTLS       bool
	insecure     bool
	logLevel     string
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "campusctl",
		Short:         "Talk to a campus server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			_, err := logging.Setup(logging.Options{Level: opts.logLevel, Output: os.Stderr})
			return err
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.settingsPath, "settings", client.SettingsPath(), "settings YAML file")
	pf.StringVarP(&opts.server, "server", "s", "", "server address (host:port)")
	pf.StringVarP(&opts.login, "login", "u", "", "account to log in as")
	pf.StringVar(&opts.password, "password", "", "password (default $CAMPUS_PASSWORD)")
	pf.BoolVar(&opts.useTLS, "tls", false, "connect with TLS")
	pf.BoolVar(&opts.insecure, "insecure", false, "accept self-signed certificates")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level: "+logging.LevelNames())

	rootCmd.AddCommand(callCmd(opts), watchCmd(opts), configureCmd(opts))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "campusctl: %s\n", err)
		os.Exit(1)
	}
}

// settings merges the settings file with flags.
func (o *rootOptions) settings(cmd *cobra.Command) (*client.Settings, error) {
	s, err := client.LoadSettings(o.settingsPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		s.Server = o.server
	}
	if flags.Changed("login") {
		s.Login = o.login
	}
	if flags.Changed("tls") {
		s.TLS = o.useTLS
	}
	if flags.Changed("insecure") {
		s.Insecure = o.insecure
	}
	return s, nil
}

// connect dials the server and logs in when a login is configured.
func (o *rootOptions) connect(cmd *cobra.Command) (*client.Client, error) {
	s, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	c, err := client.Dial(ctx, s.Server, s.Options())
	if err != nil {
		return nil, err
	}
	if s.Login == "" {
		return c, nil
	}
	password := o.password
	if password == "" {
		password = os.Getenv("CAMPUS_PASSWORD")
	}
	if _, err := c.Login(ctx, s.Login, password); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("login as %s: %w", s.Login, err)
	}
	return c, nil
}
