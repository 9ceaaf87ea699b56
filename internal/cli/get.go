package cli

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goforj/callcache"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	As string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under a key",
		Long: `Read KEY and print its value decoded with --as.

Exit codes:
  0 - value printed
  1 - key missing or value not decodable as requested
  2 - command error

Examples:
  callcache get 0b6e1d7c-3f39-4a0e-9d8a-1f6c2b1f2c11
  callcache get 0b6e1d7c-3f39-4a0e-9d8a-1f6c2b1f2c11 --as int`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "string", "decode as (bytes|string|int|float)")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command, key string) error {
	c, err := opts.openCache(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var (
		out any
		ok  bool
	)
	switch opts.As {
	case "bytes":
		var raw []byte
		raw, ok, err = callcache.RetrieveCtx[[]byte](ctx, c, key, callcache.AsBytes)
		out = hex.EncodeToString(raw)
	case "", "string":
		out, ok, err = c.GetStringCtx(ctx, key)
	case "int":
		out, ok, err = c.GetIntCtx(ctx, key)
	case "float":
		out, ok, err = c.GetFloatCtx(ctx, key)
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown decode type %q", opts.As))
	}

	var decodeErr *callcache.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return WrapExitError(ExitFailure, "decode failed", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "get failed", err)
	case !ok:
		return NewExitError(ExitFailure, fmt.Sprintf("key %q not found", key))
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
