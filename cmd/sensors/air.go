package main

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	sensors "github.com/SinaHosseini7/ens160-aht21"
	"github.com/SinaHosseini7/ens160-aht21/air"
	"github.com/SinaHosseini7/ens160-aht21/cmd/sensors/console"
)

var airCmd = cli.Command{
	Name:  "air",
	Usage: "ENS160 air quality sensor",
	Subcommands: []*cli.Command{
		&airReadCmd,
		&airVersionCmd,
		&airResistanceCmd,
		&airResetCmd,
	},
}

func withENS160(c *cli.Context, fn func(ctx context.Context, s *air.ENS160) error) error {
	bus, closeBus, err := openBus(c)
	if err != nil {
		return console.Exit(1, "adapter initialization error: %s", console.Red(err))
	}
	defer closeBus()
	s, err := air.NewENS160(c.Context, bus, air.WithENS160Address(cfg.ENS160.Address))
	if err != nil {
		return console.Exit(1, "sensor initialization error: %s", console.Red(err))
	}
	return fn(c.Context, s)
}

var airReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "wait for a fresh measurement and print it",
	Flags: append([]cli.Flag{
		&cli.Float64Flag{Name: "temperature", Aliases: []string{"t"}, Usage: "compensation temperature in °C", Value: air.DefaultCompensation.TemperatureC},
		&cli.Float64Flag{Name: "humidity", Usage: "compensation relative humidity in %", Value: air.DefaultCompensation.HumidityPct},
		&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		return withENS160(c, func(ctx context.Context, s *air.ENS160) error {
			if err := s.SetCompensation(ctx, c.Float64("temperature"), c.Float64("humidity")); err != nil {
				return console.Exit(1, "error setting compensation: %s", console.Red(err))
			}
			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			for {
				valid, err := s.Update(ctx)
				if err != nil {
					return console.Exit(1, "error reading sensor: %s", console.Red(err))
				}
				if valid {
					m := s.Measurement()
					console.Printf("%s AQI:  %s (%s)\nTVOC: %s ppb\neCO2: %s ppm\n",
						console.PictoLeaf, console.AQIColor(m.AQI)(m.AQI), m.Rating(), console.White(m.TVOC), console.White(m.ECO2))
					return nil
				}
				console.Debugf("status: %s (device status %#02x)", s.Status(), s.DeviceStatus())
				if err := sensors.Sleep(ctx, time.Second); err != nil {
					if errors.Is(err, context.DeadlineExceeded) {
						return console.Exit(1, "no data within %s, sensor status: %s", c.Duration("timeout"), console.Yellow(s.Status()))
					}
					return err
				}
			}
		})
	},
}

var airVersionCmd = cli.Command{
	Name:  "version",
	Usage: "print sensor firmware version",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		return withENS160(c, func(ctx context.Context, s *air.ENS160) error {
			ver, err := s.FirmwareVersion(ctx)
			if err != nil {
				return console.Exit(1, "error reading version: %s", console.Red(err))
			}
			console.Printf("part id: %#04x\nfirmware: %s\n", s.PartID(), console.White(ver))
			return nil
		})
	},
}

var airResistanceCmd = cli.Command{
	Name:  "resistance",
	Usage: "print raw resistance of a hot plate (1 or 4)",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "sensor", Aliases: []string{"s"}, Value: 1},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		return withENS160(c, func(ctx context.Context, s *air.ENS160) error {
			raw, err := s.RawResistance(ctx, c.Int("sensor"))
			if err != nil {
				return console.Exit(1, "error reading resistance: %s", console.Red(err))
			}
			console.Printf("resistance: %d\n", raw)
			return nil
		})
	},
}

var airResetCmd = cli.Command{
	Name:  "reset",
	Usage: "reset the sensor",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("Reset restarts the warm-up period. Continue?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				return nil
			}
		}
		return withENS160(c, func(ctx context.Context, s *air.ENS160) error {
			if err := s.Reset(ctx); err != nil {
				return console.Exit(1, "error resetting sensor: %s", console.Red(err))
			}
			console.Printf("%s\n", console.Green("reset done"))
			return nil
		})
	},
}
