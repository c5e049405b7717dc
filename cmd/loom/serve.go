package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
	"github.com/loom-ui/loom/pkg/live"
	"github.com/loom-ui/loom/pkg/snapshot"
	"github.com/loom-ui/loom/pkg/view"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		snapshotDir string
		tick        time.Duration
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live server around the demo component",
		Long: `Serve mounts a small demo component and streams its updates to
connected WebSocket clients. A ticker advances the component's clock
cell once per interval; every connected session receives the
resulting patch frames.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			opts := []live.Option{
				live.WithAddress(addr),
				live.WithLogger(logger),
			}
			if snapshotDir != "" {
				store, err := snapshot.NewDiskStore(snapshotDir)
				if err != nil {
					return fmt.Errorf("snapshot store: %w", err)
				}
				opts = append(opts, live.WithStore(store))
			}

			clock := cell.NewSource(time.Now().Format(time.TimeOnly))
			srv := live.New(demoApp(clock), opts...)

			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			go func() {
				for now := range ticker.C {
					stamp := now.Format(time.TimeOnly)
					srv.Broadcast(func() { clock.Set(stamp) })
				}
			}()

			return srv.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Listen address")
	cmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "Directory for session snapshots (disabled when empty)")
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "Clock update interval")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

// demoApp builds the template served by `loom serve`: a heading, a
// clock bound to the shared source, and a short feature list with an
// uptime-dependent highlight.
func demoApp(clock *cell.Source[string]) view.Template {
	return func() *dom.Node {
		root := dom.NewElement("main")
		root.SetAttr("class", "demo")

		heading := dom.NewElement("h1")
		heading.AppendChild(view.Text("loom live demo"))
		root.AppendChild(heading)

		clockEl := dom.NewElement("time")
		clockEl.AppendChild(view.BindText(clock))
		root.AppendChild(clockEl)

		ticking := cell.Map(func() bool { return clock.Get() != "" })
		root.AppendChild(view.IfCell(ticking, func() *dom.Node {
			badge := dom.NewElement("span")
			badge.SetAttr("class", "badge")
			badge.AppendChild(view.Text("live"))
			return badge
		}, nil))

		features := []string{"cells", "derived values", "effects", "keyed lists"}
		root.AppendChild(view.For(features, func(f string, _ *cell.Source[int]) *dom.Node {
			li := dom.NewElement("li")
			li.AppendChild(view.Text(f))
			return li
		}))

		return root
	}
}
