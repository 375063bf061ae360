package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/provenance/internal/api"
	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/harness"
	"github.com/roach88/provenance/internal/mqtt"
	"github.com/roach88/provenance/internal/stream"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	GraphID  string // graph whose events are streamed
	Scenario string // scenario played into a new graph after startup
	Recent   int    // past events sent to new websocket clients
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve graphs, live events and metrics over HTTP",
		Long: `Serve the graph listing, graph dumps, a websocket event stream and
Prometheus metrics.

The event stream carries the changes of one attached graph: the graph named
by --graph, or the graph a --scenario is played into. When an MQTT broker is
configured the same events are published to <topic>/<graph id>/<event>.

Routes:
  GET /api/graphs        graph descriptors (?match=<glob>)
  GET /api/graphs/{id}   JSON dump of one graph
  GET /ws/events         websocket event stream
  GET /metrics           Prometheus metrics

Examples:
  provenance serve --listen :8080
  provenance serve --graph 0192f3c4-...
  provenance serve --scenario ./scenarios/fork.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.GraphID != "" && opts.Scenario != "" {
				return NewExitError(ExitCommandError, "--graph and --scenario are mutually exclusive")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withStores(cmd, opts.RootOptions, func(ctx context.Context, st *stores) error {
				return serve(ctx, opts, st)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&opts.GraphID, "graph", "", "stream the events of this graph")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "play this scenario into a new graph and stream its events")
	cmd.Flags().IntVar(&opts.Recent, "recent", 50, "past events sent to new websocket clients")
	return cmd
}

// backendSource exposes a backend's change events to a broadcaster.
type backendSource struct {
	graph.Backend
}

func (s backendSource) On(name string, fn graph.Listener) func() {
	return s.Events().On(name, fn)
}

func serve(ctx context.Context, opts *ServeOptions, st *stores) error {
	cfg := opts.Config()
	logger := opts.Logger()
	events := stream.NewBroadcaster(0)

	var scenario *harness.Scenario
	if opts.Scenario != "" {
		s, err := harness.LoadScenario(opts.Scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, "load scenario", err)
		}
		scenario = s
	}

	var attached graph.Backend
	switch {
	case opts.GraphID != "":
		_, b, err := st.open(ctx, opts.GraphID)
		if err != nil {
			return err
		}
		attached = b
	case scenario != nil:
		desc, b, err := st.manager.Create(ctx, graph.Descriptor{Name: scenario.Name, Local: true})
		if err != nil {
			return fmt.Errorf("create scenario graph: %w", err)
		}
		logger.Info("scenario graph created", "id", desc.ID, "scenario", scenario.Name)
		attached = b
	}
	if attached != nil {
		detach := events.Attach(backendSource{attached})
		defer detach()
	}

	if broker := cfg.Events.MQTTBroker; broker != "" {
		client := mqtt.NewClient(broker, "provenance-serve")
		if err := client.Connect(); err != nil {
			return WrapExitError(ExitFailure, "connect mqtt", err)
		}
		defer client.Disconnect()
		pub := mqtt.NewPublisher(client, cfg.MQTTTopic())
		go func() {
			if err := pub.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mqtt publisher stopped", "error", err)
			}
		}()
		logger.Info("publishing events", "broker", broker, "topic", cfg.MQTTTopic())
	}

	if scenario != nil {
		go func() {
			result, err := harness.Run(ctx, scenario, harness.WithBackend(attached), harness.WithLogger(logger))
			switch {
			case err != nil:
				logger.Error("scenario failed to run", "scenario", scenario.Name, "error", err)
			case !result.Pass:
				logger.Warn("scenario failed", "scenario", scenario.Name, "errors", result.Errors)
			default:
				logger.Info("scenario passed", "scenario", scenario.Name, "steps", len(result.Trace))
			}
		}()
	}

	listen := opts.Listen
	if listen == "" {
		listen = cfg.Listen()
	}
	srv := api.NewServer(st.manager, events, api.WithRecent(opts.Recent))
	return srv.ListenAndServe(ctx, listen)
}
