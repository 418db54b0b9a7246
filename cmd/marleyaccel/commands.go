package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
	"github.com/arthurfeeney/Marley-Accel/internal/config"
	"github.com/arthurfeeney/Marley-Accel/internal/input"
	"github.com/arthurfeeney/Marley-Accel/internal/preview"
)

// newFlagSet returns a FlagSet whose parse errors come back as errUsage.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// profileArg applies an optional trailing PROFILE argument.
func (e *env) profileArg(fs *flag.FlagSet) error {
	switch fs.NArg() {
	case 0:
		return nil
	case 1:
		path := fs.Arg(0)
		config.FlagOverrides{ProfilePath: &path}.Apply(&e.cfg)
		return nil
	default:
		return fmt.Errorf("%w: %s: unexpected arguments %v", errUsage, fs.Name(), fs.Args()[1:])
	}
}

// loadProfile reads the configured profile and logs every fallback. A
// missing file yields the defaults when allowMissing is set.
func (e *env) loadProfile(allowMissing bool) (accel.Profile, []accel.FieldFallback, error) {
	path := e.cfg.ProfilePath()
	p, fallbacks, err := accel.LoadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("profile not found, using defaults", "path", path)
			return accel.Defaults(), nil, nil
		}
		return p, nil, err
	}
	for _, fb := range fallbacks {
		e.logger.Warn("profile field fell back to default", "path", path, "entry", fb.String())
	}
	e.logger.Debug("profile loaded", "path", path, "fallbacks", len(fallbacks))
	return p, fallbacks, nil
}

// ============================================================================
// curve
// ============================================================================

func runCurve(e *env, args []string) error {
	fs := newFlagSet("curve")
	minV := fs.Float64("min", e.cfg.Preview.MinVelocity, "first velocity sample")
	maxV := fs.Float64("max", e.cfg.Preview.MaxVelocity, "velocity upper bound (exclusive)")
	step := fs.Float64("step", e.cfg.Preview.Step, "distance between samples")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := e.profileArg(fs); err != nil {
		return err
	}

	config.FlagOverrides{MinVelocity: minV, MaxVelocity: maxV, Step: step}.Apply(&e.cfg)
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	p, _, err := e.loadProfile(false)
	if err != nil {
		return err
	}

	_, err = io.WriteString(e.stdout, curveTable(accel.Curve(e.cfg.Velocities(), p)))
	return err
}

// ============================================================================
// show
// ============================================================================

// runShow prints a profile. A PROFILE of "-" reads standard input.
func runShow(e *env, args []string) error {
	fs := newFlagSet("show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var (
		p         accel.Profile
		fallbacks []accel.FieldFallback
		err       error
	)
	if fs.NArg() == 1 && fs.Arg(0) == "-" {
		p, fallbacks, err = accel.Read(e.stdin)
		for _, fb := range fallbacks {
			e.logger.Warn("profile field fell back to default", "path", "-", "entry", fb.String())
		}
	} else {
		if err := e.profileArg(fs); err != nil {
			return err
		}
		p, fallbacks, err = e.loadProfile(false)
	}
	if err != nil {
		return err
	}

	if _, err := io.WriteString(e.stdout, profileTable(p)); err != nil {
		return err
	}
	if len(fallbacks) > 0 {
		fmt.Fprintln(e.stdout)
		fmt.Fprintln(e.stdout, "Fell back to defaults:")
		for _, fb := range fallbacks {
			fmt.Fprintln(e.stdout, "  "+fb.String())
		}
	}
	return nil
}

// ============================================================================
// reset / set
// ============================================================================

func runReset(e *env, args []string) error {
	fs := newFlagSet("reset")
	legacy := fs.Bool("legacy", false, "write only the six legacy keys")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := e.profileArg(fs); err != nil {
		return err
	}

	order := e.cfg.KeyOrder()
	if *legacy {
		order = accel.LegacyKeys()
	}
	path := e.cfg.ProfilePath()
	if err := accel.SaveFile(path, accel.Defaults(), order); err != nil {
		return err
	}
	e.logger.Info("profile reset to defaults", "path", path)
	return nil
}

// runSet applies key=value arguments on top of the stored profile. Unlike
// file parsing, a bad argument is an error: nothing is saved.
func runSet(e *env, args []string) error {
	fs := newFlagSet("set")
	profile := fs.String("profile", "", "profile file (default profile.path)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *profile != "" {
		config.FlagOverrides{ProfilePath: profile}.Apply(&e.cfg)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: set: no key=value arguments", errUsage)
	}

	updates, fallbacks := accel.ParseDetailed(fs.Args())
	if len(fallbacks) > 0 {
		msgs := make([]string, len(fallbacks))
		for i, fb := range fallbacks {
			msgs[i] = fb.String()
		}
		return fmt.Errorf("%w: set: %s", errUsage, strings.Join(msgs, "; "))
	}

	p, _, err := e.loadProfile(true)
	if err != nil {
		return err
	}
	for _, arg := range fs.Args() {
		name, _, _ := strings.Cut(arg, "=")
		k := accel.Key(strings.TrimSpace(name))
		if err := p.Set(k, updates.Get(k)); err != nil {
			return err
		}
	}

	path := e.cfg.ProfilePath()
	if err := accel.SaveFile(path, p, e.cfg.KeyOrder()); err != nil {
		return err
	}
	e.logger.Info("profile saved", "path", path, "changed", fs.NArg())
	return nil
}

// ============================================================================
// serve
// ============================================================================

func runServe(e *env, args []string) error {
	fs := newFlagSet("serve")
	listen := fs.String("listen", e.cfg.Preview.Listen, "HTTP listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := e.profileArg(fs); err != nil {
		return err
	}
	config.FlagOverrides{Listen: listen}.Apply(&e.cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, e, clockwork.NewRealClock())
}

func serve(ctx context.Context, e *env, clock clockwork.Clock) error {
	store := preview.NewStore(e.cfg.ProfilePath(), e.cfg.KeyOrder())
	if err := store.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		e.logger.Warn("profile not found, serving defaults until saved", "path", store.Path())
	}

	srv := preview.NewServer(e.logger, store, preview.ServerConfig{
		Grid: preview.Grid{
			Min:  e.cfg.Preview.MinVelocity,
			Max:  e.cfg.Preview.MaxVelocity,
			Step: e.cfg.Preview.Step,
		},
		Clock: clock,
	})
	mux := http.NewServeMux()
	srv.Register(mux)

	watcher := preview.NewWatcher(e.logger, store, clock, e.cfg.PollInterval(), srv.Publish)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Hub().Run(ctx)
		return nil
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		return preview.ListenAndServe(ctx, e.cfg.Preview.Listen, mux, e.logger)
	})
	return g.Wait()
}

// ============================================================================
// monitor
// ============================================================================

func runMonitor(e *env, args []string) error {
	fs := newFlagSet("monitor")
	device := fs.String("device", "", `input device (default input.devices); "-" replays a recorded stream from stdin`)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := e.profileArg(fs); err != nil {
		return err
	}
	if *device != "" {
		config.FlagOverrides{Device: device}.Apply(&e.cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan input.Event, 64)
	if *device == "-" {
		return replay(ctx, e, events)
	}

	files, err := input.OpenDevices(e.cfg.Input.Devices)
	if err != nil {
		e.logger.Error("failed to open input device", "devices", e.cfg.Input.Devices, "error", err, "tip", "run as root or add user to 'input' group")
		return err
	}
	defer input.CloseDevices(files)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return input.ReadDevices(ctx, files, events)
	})
	g.Go(func() error {
		return monitor(ctx, e, clockwork.NewRealClock(), events)
	})
	return g.Wait()
}

// replay runs monitor over raw input_event records read from stdin. It
// returns once the stream ends.
func replay(ctx context.Context, e *env, events chan input.Event) error {
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		errc <- input.ReadEvents(ctx, e.stdin, events)
	}()

	if err := monitor(ctx, e, clockwork.NewRealClock(), events); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	default:
		// Interrupted while the reader is still blocked on stdin.
		return nil
	}
}

// monitor logs accelerated output for each motion report in events. The
// profile file is watched, so edits apply without a restart.
func monitor(ctx context.Context, e *env, clock clockwork.Clock, events <-chan input.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := preview.NewStore(e.cfg.ProfilePath(), e.cfg.KeyOrder())
	if err := store.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		e.logger.Warn("profile not found, using defaults", "path", store.Path())
	}
	p, _ := store.Snapshot()
	acc := accel.NewAccelerator(p)

	reload := make(chan struct{}, 1)
	watcher := preview.NewWatcher(e.logger, store, clock, e.cfg.PollInterval(), func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	})
	go func() { _ = watcher.Run(ctx) }()

	e.logger.Info("monitoring", "devices", e.cfg.Input.Devices, "profile", store.Path())

	var agg input.Aggregator
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-reload:
			p, _ := store.Snapshot()
			acc.SetProfile(p)
			e.logger.Info("profile applied", "path", store.Path())

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m, ok := agg.Feed(ev)
			if !ok {
				continue
			}
			velocity := acc.Velocity(m.DX, m.DY)
			sens := accel.Evaluate(velocity, acc.Profile())
			dx, dy := acc.Apply(m.DX, m.DY)
			e.logger.Info("motion",
				"dx", m.DX, "dy", m.DY,
				"velocity", velocity, "sens", sens,
				"out_dx", dx, "out_dy", dy)
		}
	}
}
