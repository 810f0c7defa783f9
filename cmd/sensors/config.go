package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/SinaHosseini7/ens160-aht21/cmd/sensors/console"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		data, err := cfg.Marshal()
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		_, _ = os.Stdout.Write(data)
		return nil
	},
}
