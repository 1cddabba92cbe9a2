package cli

import (
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/config"
	"github.com/zeromv/zeromv/pkg/device"
)

// deviceCommand prints the device and precision a run would use.
func (c *CLI) deviceCommand() *cobra.Command {
	var dev string

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Show the compute device a run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags config.Layer
			if cmd.Flags().Changed("device") {
				flags.Device = config.String(dev)
			}
			cfg, err := c.loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			kind, err := probeDevice(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printKeyValue("Device", string(kind))
			printKeyValue("Precision", backend.ResolveDType(cfg.DType, kind))
			if cfg.Device != "" && cfg.Device != string(device.Auto) {
				printDetail("set explicitly by configuration")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dev, "device", "", "override: auto, cuda, mps, cpu")
	return cmd
}
