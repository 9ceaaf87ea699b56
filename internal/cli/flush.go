package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFlushCommand creates the flush command.
func NewFlushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every value and recorded call under the prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCache(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.FlushCtx(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "flush failed", err)
			}
			opts.log().Info("flushed", "driver", string(c.Driver()))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
