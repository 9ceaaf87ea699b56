package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewExpireCommand creates the expire command.
func NewExpireCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire KEY SECONDS",
		Short: "Set a key's time to live",
		Long: `Give KEY a time to live of SECONDS. Zero or a negative value deletes
the key immediately. Prints whether the key existed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid seconds", err)
			}
			c, err := opts.openCache(cmd.Context())
			if err != nil {
				return err
			}
			existed, err := c.Backend().Expire(cmd.Context(), args[0], time.Duration(seconds)*time.Second)
			if err != nil {
				return WrapExitError(ExitCommandError, "expire failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), existed)
			return nil
		},
	}
}
