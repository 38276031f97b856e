// Package main is an interactive shell for running the half-step sequencer and speed ramps
// without hardware. Every coil pattern is printed instead of being written to pins.
package main

import (
	"context"
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"
	"github.com/viam-modules/halfstep/halfstep"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// printSink shows each pattern as the four coils, A first.
type printSink struct {
	shell *ishell.Shell
	quiet bool
	count int
}

func (s *printSink) Emit(ctx context.Context, p halfstep.Phase) error {
	s.count++
	if s.quiet {
		return nil
	}
	s.shell.Printf("%6d  %s  0b%04b\n", s.count, coils(p), uint8(p))
	return nil
}

func coils(p halfstep.Phase) string {
	var sb strings.Builder
	for i, name := range "ABCD" {
		if p&(1<<i) != 0 {
			sb.WriteRune(name)
		} else {
			sb.WriteRune('.')
		}
	}
	return sb.String()
}

type sleepWaiter struct {
	fast bool
}

func (w sleepWaiter) Wait(ctx context.Context, d time.Duration) error {
	if w.fast {
		return ctx.Err()
	}
	if !utils.SelectContextOrWait(ctx, d) {
		return ctx.Err()
	}
	return nil
}

func main() {
	profilePath := flag.String("profile", "", "YAML ramp profile (defaults are used when empty)")
	fast := flag.Bool("fast", false, "Skip the delays between steps")
	quiet := flag.Bool("quiet", false, "Only print step totals")
	flag.Parse()

	logger := logging.NewLogger("benchshell")

	profile := halfstep.DefaultProfile()
	if *profilePath != "" {
		var err error
		profile, err = halfstep.LoadProfile(*profilePath)
		if err != nil {
			logger.Fatal(err)
		}
	}

	shell := ishell.New()
	state := halfstep.NewState()
	sink := &printSink{shell: shell, quiet: *quiet}
	waiter := sleepWaiter{fast: *fast}
	ctx := context.Background()

	run := func(c *ishell.Context, what string, f func() error) {
		before := sink.count
		if err := f(); err != nil {
			c.Err(err)
			return
		}
		c.Printf("%s: %d steps, phase 0b%04b, position %d\n", what, sink.count-before, uint8(state.Phase()), state.Position())
	}

	shell.Println("Half-step stepper bench shell")
	shell.AddCmd(&ishell.Cmd{
		Name: "phase",
		Help: "show the current phase and position",
		Func: func(c *ishell.Context) {
			p := state.Phase()
			idx, err := halfstep.PhaseIndex(p)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s  0b%04b  index %d  position %d\n", coils(p), uint8(p), idx, state.Position())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "step",
		Help: "step <fwd|rev> [n]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(errors.New("usage: step <fwd|rev> [n]"))
				return
			}
			dir, err := halfstep.ParseDirection(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			n := 1
			if len(c.Args) >= 2 {
				if n, err = strconv.Atoi(c.Args[1]); err != nil || n < 1 {
					c.Err(errors.Errorf("bad step count %q", c.Args[1]))
					return
				}
			}
			delay := time.Duration(profile.MinSpeed) * profile.DelayUnit()
			run(c, "step", func() error {
				for i := 0; i < n; i++ {
					p, err := state.Step(dir)
					if err != nil {
						return err
					}
					if err := sink.Emit(ctx, p); err != nil {
						return err
					}
					if err := waiter.Wait(ctx, delay); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "ramp",
		Help: "ramp <up|down> <fwd|rev>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(errors.New("usage: ramp <up|down> <fwd|rev>"))
				return
			}
			mode, err := halfstep.ParseMode(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			dir, err := halfstep.ParseDirection(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			run(c, "ramp", func() error {
				return halfstep.Ramp(ctx, profile.Params(mode, dir), state, sink, waiter)
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "cycle",
		Help: "cycle [n] - run the profile's cycle n times",
		Func: func(c *ishell.Context) {
			n := 1
			if len(c.Args) >= 1 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil || n < 1 {
					c.Err(errors.Errorf("bad repeat count %q", c.Args[0]))
					return
				}
			}
			ramps, err := profile.Ramps()
			if err != nil {
				c.Err(err)
				return
			}
			run(c, "cycle", func() error {
				return halfstep.RunCycle(ctx, ramps, n, state, sink, waiter)
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "profile",
		Help: "show the ramp profile in use",
		Func: func(c *ishell.Context) {
			c.Printf("speeds %d -> %d, %d iterations per level, %v per delay unit\n",
				profile.MinSpeed, profile.MaxSpeed, profile.IterationsPerLevel, profile.DelayUnit())
			for i, seg := range profile.Cycle {
				c.Printf("  %d: %s %s\n", i, seg.Mode, seg.Direction)
			}
		},
	})

	shell.Run()
}
