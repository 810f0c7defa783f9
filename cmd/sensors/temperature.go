package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/SinaHosseini7/ens160-aht21/cmd/sensors/console"
	"github.com/SinaHosseini7/ens160-aht21/environment"
)

var tempCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "AHT21 temperature and humidity sensor",
	Subcommands: []*cli.Command{
		&tempReadCmd,
		&tempResetCmd,
	},
}

func withAHT21(c *cli.Context, fn func(ctx context.Context, s *environment.AHT21) error) error {
	bus, closeBus, err := openBus(c)
	if err != nil {
		return console.Exit(1, "adapter initialization error: %s", console.Red(err))
	}
	defer closeBus()
	s, err := environment.NewAHT21(c.Context, bus, environment.WithAHT21Address(cfg.AHT21.Address))
	if err != nil {
		return console.Exit(1, "sensor initialization error: %s", console.Red(err))
	}
	return fn(c.Context, s)
}

var tempReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags:   busFlags,
	Action: func(c *cli.Context) error {
		return withAHT21(c, func(ctx context.Context, s *environment.AHT21) error {
			temp, hum, err := s.ReadTemperatureHumidity(ctx, cfg.AHT21.Retries)
			if err != nil {
				return console.Exit(1, "error getting temperature read: %s", console.Red(err))
			}
			console.Printf("%s  %s °C\n%s %s %%RH\n",
				console.PictoThermometer, console.White(fmt.Sprintf("%.2f", temp)),
				console.PictoHumidity, console.White(fmt.Sprintf("%.2f", hum)))
			return nil
		})
	},
}

var tempResetCmd = cli.Command{
	Name:  "reset",
	Usage: "soft reset and recalibrate the sensor",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		return withAHT21(c, func(ctx context.Context, s *environment.AHT21) error {
			if err := s.SoftReset(ctx); err != nil {
				return console.Exit(1, "error resetting sensor: %s", console.Red(err))
			}
			if err := s.Calibrate(ctx); err != nil {
				return console.Exit(1, "error calibrating sensor: %s", console.Red(err))
			}
			console.Printf("%s\n", console.Green("calibrated"))
			return nil
		})
	},
}
