package main

import (
	"github.com/spf13/cobra"

	"github.com/NicolasHaas/campus/pkg/server"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		listen, wsListen, metricsListen, duplicate string
		useTLS                                     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("ws") {
				cfg.WSListen = wsListen
			}
			if flags.Changed("metrics") {
				cfg.MetricsListen = metricsListen
			}
			if flags.Changed("tls") {
				cfg.TLS = useTLS
			}
			if flags.Changed("duplicate-login") {
				cfg.DuplicateLogin = duplicate
			}

			db, svc, err := openServices(cfg)
			if err != nil {
				return err
			}
			srv, err := server.New(cfg, server.Dependencies{
				Services: svc,
				Store:    db,
				Logger:   logger,
			})
			if err != nil {
				_ = db.Close()
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "TCP bind address for the framed protocol")
	f.StringVar(&wsListen, "ws", "", "WebSocket bind address (empty to disable)")
	f.StringVar(&metricsListen, "metrics", "", "HTTP bind address for /metrics (empty to disable)")
	f.BoolVar(&useTLS, "tls", false, "Serve the TCP listener over TLS 1.3")
	f.StringVar(&duplicate, "duplicate-login", "", "Second login for an online user: evict or reject")
	return cmd
}
