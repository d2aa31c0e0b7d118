package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sensorcode-go/bus"
	"sensorcode-go/services/config"
	"sensorcode-go/services/devices"
	"sensorcode-go/services/heartbeat"
	"sensorcode-go/services/platform"
	"sensorcode-go/services/readlog"
	"sensorcode-go/services/sensor"
	"sensorcode-go/services/telemetry"
	"sensorcode-go/services/timestamp"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

const busQueueLen = 64

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		feed     bool
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Install the configured sensors and run the manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			var out io.Writer
			if feed {
				out = cmd.OutOrStdout()
			}
			return runDaemon(ctx, cfg, opts.log, out)
		},
	}
	cmd.Flags().BoolVar(&feed, "print", false, "print readings and events to stdout")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

// runDaemon wires the manager, bus services and drivers and supervises them
// until ctx ends. A non-nil out receives a console feed of the bus.
func runDaemon(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	mc := cfg.Manager
	clock := timex.NewSystem(mc.TicksPerSecond)
	ts := timestamp.New(timestamp.Config{
		Wall:    clock,
		CPU:     clock,
		Refresh: mc.TimestampRefresh,
		Retry:   mc.TimestampRetry,
		Logger:  log,
	})
	m := sensor.NewManager(sensor.Config{
		Clock:          clock,
		Timestamps:     ts,
		Logger:         log,
		NotifyPoolSize: mc.NotifyPoolSize,
		ReadTimeout:    mc.ReadTimeout,
		LockTimeout:    mc.LockTimeout,
	})
	defer m.Close()

	b := bus.NewBus(busQueueLen)
	if err := config.NewService(cfg, log).Publish(b.NewConnection("config")); err != nil {
		return err
	}

	bridge := platform.NewBridge(m, busQueueLen, log)
	inst, err := devices.Install(ctx, m, devices.Env{
		Buses:  platform.DefaultI2CFactory(),
		Pins:   platform.NewHostPinFactory(),
		Bridge: bridge,
		Logger: log,
	}, cfg.Sensors)
	if err != nil {
		return err
	}
	defer inst.Close()

	var store *readlog.Store
	if cfg.ReadLog.Path != "" {
		if store, err = readlog.Open(cfg.ReadLog.Path, log); err != nil {
			return err
		}
		defer store.Close()
	}

	tele := telemetry.New(m, b.NewConnection("telemetry"), log)
	for _, s := range inst.Sensors() {
		var chain []sensor.NotifierFunc
		if store != nil {
			if err := m.RegisterListener(s, store.Listener()); err != nil {
				return err
			}
			chain = append(chain, store.Notifier(types.EventAll).Func)
		}
		if err := tele.Attach(s, types.EventAll, chain...); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if out != nil {
		con := newConsole(out, b.NewConnection("console"))
		g.Go(func() error { return con.run(gctx) })
	}
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { return tele.Serve(gctx) })
	g.Go(func() error {
		return heartbeat.New(m, cfg.Heartbeat.Interval, log).Run(gctx, b.NewConnection("heartbeat"))
	})
	if store != nil {
		g.Go(func() error { return store.Run(gctx) })
	}

	log.Info("sensord running", "sensors", len(inst.Sensors()), "readlog", cfg.ReadLog.Path)
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	st := m.Stats()
	log.Info("sensord stopped", "polls", st.Polls, "poll_errors", st.PollErrors, "notified", st.Notified, "isr_drops", bridge.ISRDrops())
	return err
}

// console prints readings and events as they appear on the bus.
type console struct {
	out    io.Writer
	conn   *bus.Connection
	values *bus.Subscription
	events *bus.Subscription

	name  lipgloss.Style
	event lipgloss.Style
}

func newConsole(out io.Writer, conn *bus.Connection) *console {
	r := lipgloss.NewRenderer(out)
	return &console{
		out:    out,
		conn:   conn,
		values: conn.Subscribe(bus.T("sensor", "+", "value", "+")),
		events: conn.Subscribe(bus.T("sensor", "+", "event", "+")),
		name:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		event:  r.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

func (c *console) run(ctx context.Context) error {
	defer c.conn.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.values.Channel():
			if r, ok := msg.Payload.(telemetry.Reading); ok {
				fmt.Fprintf(c.out, "%s %-8s %s %s\n", r.Time.Format(time.TimeOnly), c.name.Render(r.Sensor), r.Type, formatFields(r.Fields))
			}
		case msg := <-c.events.Channel():
			if e, ok := msg.Payload.(telemetry.Event); ok {
				fmt.Fprintf(c.out, "%s %-8s %s\n", e.Time.Format(time.TimeOnly), c.name.Render(e.Sensor), c.event.Render(e.Event))
			}
		}
	}
}

// formatFields renders valid fields and "-" for invalid ones.
func formatFields(fs []types.Field) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		if !f.Valid {
			parts[i] = "-"
			continue
		}
		parts[i] = strconv.FormatFloat(f.Value, 'f', 3, 64)
	}
	return strings.Join(parts, " ")
}
