package cli

import (
	"fmt"
	"image"

	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// sheetCommand creates the sheet command for standalone contact sheets.
func (c *CLI) sheetCommand() *cobra.Command {
	var (
		output string
		cols   int
	)

	cmd := &cobra.Command{
		Use:   "sheet [images...]",
		Short: "Compose images into a contact sheet",
		Long: `Compose images into a contact sheet.

All images must share the size of the first one. They are placed row by row
in --cols columns (default min(8, number of images)).`,
		Example: `  zeromv sheet -o sheet.png outputs/chair/0*_chair_view.png
  zeromv sheet -o pair.png --cols 1 a.png b.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New(errors.ErrCodeConfig, "provide --output")
			}
			if cols < 0 {
				return errors.New(errors.ErrCodeConfig, "cols must not be negative, got %d", cols)
			}

			images := make([]image.Image, 0, len(args))
			for _, path := range args {
				img, err := tiles.Open(path)
				if err != nil {
					return err
				}
				images = append(images, img)
			}

			sheet, err := tiles.Compose(images, cols)
			if err != nil {
				return err
			}
			if err := layout.WritePNG(cmd.Context(), output, sheet); err != nil {
				return err
			}

			size := sheet.Bounds().Size()
			printSuccess("Composed %s", StyleNumber.Render(fmt.Sprintf("%d images", len(images))))
			printDetail("%dx%d pixels", size.X, size.Y)
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG path")
	cmd.Flags().IntVar(&cols, "cols", 0, "number of columns (default min(8, images))")

	return cmd
}
