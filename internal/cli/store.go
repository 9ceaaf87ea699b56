package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// StoreOptions holds flags for the store command.
type StoreOptions struct {
	*RootOptions
	Type string
}

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store VALUE",
		Short: "Store a value and print its generated key",
		Long: `Store VALUE under a freshly generated key and print the key.

The call is counted and its input and output are appended to the
Cache.Store history.

Examples:
  callcache store hello
  callcache store 42 --type int
  callcache --driver redis store 2.5 --type float`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "string", "value type (string|int|float|bytes)")

	return cmd
}

func runStore(opts *StoreOptions, cmd *cobra.Command, raw string) error {
	data, err := parseValue(raw, opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid value", err)
	}
	c, err := opts.openCache(cmd.Context())
	if err != nil {
		return err
	}
	key, err := c.StoreCtx(cmd.Context(), data)
	if err != nil {
		return WrapExitError(ExitCommandError, "store failed", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func parseValue(raw, typ string) (any, error) {
	switch typ {
	case "", "string":
		return raw, nil
	case "bytes":
		return []byte(raw), nil
	case "int":
		return strconv.ParseInt(raw, 10, 64)
	case "float":
		return strconv.ParseFloat(raw, 64)
	default:
		return nil, fmt.Errorf("unknown type %q: must be one of string, int, float, bytes", typ)
	}
}
