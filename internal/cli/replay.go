package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goforj/callcache"
)

// ValidFormats defines the allowed replay output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Format string
}

// ReplayResult is the structured form of a replayed history.
type ReplayResult struct {
	Operation string                 `json:"operation" yaml:"operation"`
	Called    bool                   `json:"called" yaml:"called"`
	Count     int64                  `json:"count" yaml:"count"`
	Calls     []callcache.CallRecord `json:"calls" yaml:"calls"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [OPERATION]",
		Short: "Print every recorded call of an operation",
		Long: `Print the call count and each recorded input -> output pair for
OPERATION, oldest first. OPERATION defaults to Cache.Store.

When a call failed after its input was recorded, the input and output
lists differ in length and only complete pairs are printed.

History lives in the configured backend. The default file driver keeps it
across invocations; --driver memory only sees calls made by the same process.

Examples:
  callcache replay
  callcache replay --format json
  callcache --driver sql replay Cache.Store --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := callcache.StoreOperation
			if len(args) == 1 {
				name = args[0]
			}
			return runReplay(opts, cmd, name)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, name string) error {
	if !isValidFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	c, err := opts.openCache(cmd.Context())
	if err != nil {
		return err
	}
	h, err := callcache.ReadHistory(cmd.Context(), c.Backend(), name)
	if err != nil {
		return WrapExitError(ExitCommandError, "read history", err)
	}

	out := cmd.OutOrStdout()
	result := ReplayResult{
		Operation: h.Operation,
		Called:    h.Called(),
		Count:     h.Count,
		Calls:     h.Calls(),
	}
	switch opts.Format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "marshal json", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return WrapExitError(ExitCommandError, "marshal yaml", err)
		}
		_, err = out.Write(data)
		return err
	default:
		return h.Render(out)
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
