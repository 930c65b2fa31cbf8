package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/campus/pkg/protocol"
)

func callCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call OPCODE [JSON]",
		Short: "Send one request and print the reply payload",
		Example: `  campusctl -u s001 call GET_CART
  campusctl -u admin call ADD_BOOK '{"title":"SICP","copies":2}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := protocol.Opcode(strings.ToUpper(args[0]))
			var payload json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("payload is not valid JSON")
				}
				payload = json.RawMessage(args[1])
			}

			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			var reply json.RawMessage
			var req any
			if payload != nil {
				req = payload
			}
			if err := c.Call(ctx, op, req, &reply); err != nil {
				return err
			}
			return printJSON(reply)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up waiting after this long")
	return cmd
}

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log in and print pushes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			c.SetPushHandler(func(msg *protocol.Message) {
				fmt.Printf("%s %s\n", time.Now().Format(time.TimeOnly), msg.Opcode)
				_ = printJSON(msg.Payload)
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			select {
			case <-ctx.Done():
				return nil
			case <-c.Done():
				return fmt.Errorf("connection closed by server")
			}
		},
	}
}

func configureCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Save --server, --login, --tls and --insecure as defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			if err := s.Save(opts.settingsPath); err != nil {
				return err
			}
			fmt.Println("saved", opts.settingsPath)
			return nil
		},
	}
}

func printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}
