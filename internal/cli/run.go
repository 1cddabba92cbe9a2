package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/config"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/pipeline"
	"github.com/zeromv/zeromv/pkg/rig"
)

// runCommand creates the run command, the main entry point for generation.
func (c *CLI) runCommand() *cobra.Command {
	var (
		f       runFlags
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate six views of one photo",
		Long: `Generate six views of one photo.

The input is padded to a square, handed to the generation backend, and the
returned composite is split into six tiles. Tiles are written to
<out>/<name>/NNN_<name>_view.png together with the raw composite, a contact
sheet (unless --grid=false) and a manifest.

Composites are cached by input content and generation settings; use
--refresh to regenerate.`,
		Example: `  zeromv run -i chair.jpg
  zeromv run -i chair.jpg -o renders --steps 50 --grid-cols 3
  zeromv run -c config.toml --backend http --backend-url http://gpu-box:7860`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, f.layer(cmd))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.runGenerate(cmd.Context(), cfg, refresh)
		},
	}

	cmd.Flags().StringVarP(&f.image, "image", "i", "", "input photo")
	f.bindOutput(cmd)
	f.bindModel(cmd)
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached composites")

	return cmd
}

// runGenerate probes the device, builds the backend and executes one run.
func (c *CLI) runGenerate(ctx context.Context, cfg config.Config, refresh bool) error {
	prog := newProgress(c.Logger)
	dev, err := probeDevice(ctx, cfg)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Device: %s", dev))

	b, err := backend.New(cfg.Backend.Kind, backendOptions(cfg, dev, c.Logger))
	if err != nil {
		return err
	}
	runner, closeRunner, err := c.newRunner(ctx, cfg, b)
	if err != nil {
		return err
	}
	defer closeRunner()

	opts := pipelineOptions(cfg, dev)
	opts.Refresh = refresh

	spinner := newSpinner(ctx, fmt.Sprintf("Loading %s...", filepath.Base(cfg.Image)))
	restore := followStages(spinner)
	spinner.Start()
	res, err := runner.Execute(ctx, opts)
	restore()
	if err != nil {
		spinner.StopWithError("Generation failed")
		return err
	}
	spinner.Stop()

	printResult(res)
	return nil
}

// printResult reports what a run wrote.
func printResult(res *pipeline.Result) {
	printSuccess("Wrote %s to %s",
		StyleNumber.Render(fmt.Sprintf("%d images", len(res.Tiles))),
		StyleHighlight.Render(res.Run.RunDir))
	printStats(res)

	if res.Fallback {
		printWarning("Composite did not match a six-tile layout; wrote it as a single tile")
	}
	if res.SheetPath != "" {
		printKeyValue("Contact sheet", res.SheetPath)
	} else if res.SheetErr != nil {
		printWarning("Contact sheet skipped: %s", errors.UserMessage(res.SheetErr))
	}
	if res.Manifest != nil && res.Manifest.Path != "" {
		printKeyValue("Manifest", res.Manifest.Path)
	}
	if res.Upload != nil {
		printKeyValue("Uploaded", fmt.Sprintf("%d objects to %s", len(res.Upload.Keys), res.Upload.Bucket))
	} else if res.UploadErr != nil {
		printWarning("Upload failed: %s", errors.UserMessage(res.UploadErr))
	}
	printDetail("Note: %s", rig.Notice)
}
