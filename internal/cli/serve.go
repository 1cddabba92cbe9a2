package cli

import (
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/observability"
	"github.com/zeromv/zeromv/pkg/server"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// serveCommand starts the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		f      runFlags
		addr   string
		static string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Long: `Serve the pipeline over HTTP.

Endpoints:
  GET  /healthz                 liveness probe
  POST /v1/runs                 multipart form: image (file), steps, grid, grid_cols, name
  GET  /v1/runs                 recent runs
  GET  /v1/runs/{id}            one run
  GET  /v1/runs/{name}/{file}   artifact download
  GET  /v1/stats                pipeline, cache and request counters

--static serves a fixed composite instead of calling the model, which is
useful for trying the API without a GPU.`,
		Example: `  zeromv serve --addr :8080
  zeromv serve --static outputs/chair/chair_views_grid.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(cmd, f.layer(cmd))
			if err != nil {
				return err
			}
			if err := cfg.ValidateSettings(); err != nil {
				return err
			}

			dev, err := probeDevice(ctx, cfg)
			if err != nil {
				return err
			}

			var b backend.Backend
			if static != "" {
				composite, err := tiles.Open(static)
				if err != nil {
					return err
				}
				b = backend.NewStaticBackend(composite)
			} else if b, err = backend.New(cfg.Backend.Kind, backendOptions(cfg, dev, c.Logger)); err != nil {
				return err
			}

			runner, closeRunner, err := c.newRunner(ctx, cfg, b)
			if err != nil {
				return err
			}
			defer closeRunner()

			counters := observability.NewCounters()
			counters.Install()

			srv := server.New(runner, server.Options{
				Addr:     addr,
				Template: pipelineOptions(cfg, dev),
				Stats:    counters,
				Logger:   c.Logger,
			})
			printInfo("Serving %s on %s", StyleHighlight.Render(b.Name()), StyleLink.Render("http://"+displayAddr(addr)))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&static, "static", "", "serve this composite instead of calling the model")
	f.bindOutput(cmd)
	f.bindModel(cmd)

	return cmd
}

// displayAddr turns ":8080" into "localhost:8080".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
