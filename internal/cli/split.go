package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// splitCommand creates the split command for re-processing a composite.
func (c *CLI) splitCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "split [composite.png]",
		Short: "Split an existing composite into tiles",
		Long: `Split an existing composite into tiles.

The composite is cut into six tiles exactly like the output of 'run', without
calling the model. The run directory name defaults to the composite's file
name; use --name to choose another.`,
		Example: `  zeromv split outputs/chair/chair_views_grid.png --name chair-v2
  zeromv split grid.png -o renders --grid-cols 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, f.layer(cmd))
			if err != nil {
				return err
			}
			if err := cfg.ValidateSettings(); err != nil {
				return err
			}

			ctx := cmd.Context()
			composite, err := tiles.Open(args[0])
			if err != nil {
				return err
			}

			runner, closeRunner, err := c.newRunner(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer closeRunner()

			opts := pipelineOptions(cfg, "")
			opts.Input = args[0]
			opts.Name = f.name
			if opts.Name == "" {
				opts.Name = layout.BaseName(args[0])
			}

			prog := newProgress(c.Logger)
			res, err := runner.Process(ctx, composite, opts)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Split %s", args[0]))
			printResult(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "run directory name (default: composite file name)")
	f.bindOutput(cmd)
	cmd.Flags().BoolVar(&f.upload, "upload", false, "publish artifacts to the configured bucket")

	return cmd
}
