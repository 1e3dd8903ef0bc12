// cmd/parknetctl/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"parknet-api-server/internal/auth"
	"parknet-api-server/internal/client"
	"parknet-api-server/internal/socket"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	server  string
	token   string
	verbose bool
	logger  *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "parknetctl",
		Short:        "Operate a ParkNet API server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("PARKNET_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("PARKNET_TOKEN"), "bearer token (see `parknetctl token`)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newTokenCmd(),
		newSnapshotCmd(opts),
		newViewCmd(opts),
		newOccupancyCmd(opts),
		newHoldCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.token)
}

func newTokenCmd() *cobra.Command {
	var (
		user, role, secret, issuer string
		ttl                        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := auth.NewVerifier(secret, issuer, ttl)
			if err != nil {
				return err
			}
			tok, err := v.Issue(user, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "user or admin")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the server")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "parknet"), "token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newSnapshotCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot FACILITY",
		Short: "Print the slot states of a facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := o.client().Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func newViewCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "view FACILITY",
		Short: "Print the dashboard view of a facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := o.client().Facility(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newOccupancyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "occupancy FACILITY SLOT occupied|free",
		Short: "Report a sensor reading for one slot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("slot %q is not a number", args[1])
			}
			occupied, err := parseOccupied(args[2])
			if err != nil {
				return err
			}
			ev, changed, err := o.client().SetOccupancy(cmd.Context(), args[0], slot, occupied)
			if err != nil {
				return err
			}
			o.logger.Debug("occupancy reported", zap.Bool("changed", changed), zap.Uint64("sequence", ev.Sequence))
			return printJSON(cmd.OutOrStdout(), map[string]any{"event": ev, "changed": changed})
		},
	}
}

func newHoldCmd(o *options) *cobra.Command {
	hold := &cobra.Command{
		Use:   "hold",
		Short: "Manage reservation holds",
	}

	var ttl time.Duration
	request := &cobra.Command{
		Use:   "request FACILITY SLOT",
		Short: "Reserve a free slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("slot %q is not a number", args[1])
			}
			h, err := o.client().RequestHold(cmd.Context(), args[0], slot, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
	request.Flags().DurationVar(&ttl, "ttl", 0, "hold lifetime (server default when unset)")

	var by time.Duration
	extend := &cobra.Command{
		Use:   "extend HOLD_ID",
		Short: "Push a hold's expiry back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := o.client().ExtendHold(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
	extend.Flags().DurationVar(&by, "by", 5*time.Minute, "extra lifetime")

	release := &cobra.Command{
		Use:   "release HOLD_ID",
		Short: "Give a held slot back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client().ReleaseHold(cmd.Context(), args[0]); err != nil {
				return err
			}
			o.logger.Info("hold released", zap.String("hold", args[0]))
			return nil
		},
	}

	arrive := &cobra.Command{
		Use:   "arrive HOLD_ID",
		Short: "Confirm the holder parked in the slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := o.client().ConfirmArrival(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ev)
		},
	}

	hold.AddCommand(request, extend, release, arrive)
	return hold
}

func newWatchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FACILITY",
		Short: "Stream live slot changes until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			err := o.client().Watch(cmd.Context(), args[0], func(m socket.Message) error {
				if m.Type == socket.TypeClosed {
					o.logger.Warn("server closed the stream", zap.String("reason", m.Error))
				}
				return json.NewEncoder(out).Encode(m)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func parseOccupied(s string) (bool, error) {
	switch s {
	case "occupied", "true", "1":
		return true, nil
	case "free", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("state must be occupied or free, got %q", s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
