package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdpreview/internal/format"
	"mdpreview/internal/guide"
)

func newGuideCmd(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:         "guide [topic]",
		Short:       "Show built-in help topics (markdown, shortcuts, autosave, config)",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationDefaults: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return writeOut(cmd, app, format.Envelope{Data: map[string]any{"topics": guide.Topics()}})
			}

			topic := args[0]
			body, ok := guide.Get(topic)
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown guide topic: %q (run `mdpreview guide` to list topics)", topic))
			}
			if raw {
				_, err := fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"topic": topic, "markdown": body}})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw markdown (no envelope)")
	return cmd
}
