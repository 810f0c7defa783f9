package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/SinaHosseini7/ens160-aht21/cmd/sensors/console"
	"github.com/SinaHosseini7/ens160-aht21/pkg/config"
	"github.com/SinaHosseini7/ens160-aht21/snsctx"
)

var commit string
var date string

// effective configuration, loaded before any command runs
var cfg = config.Default()

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "sensors"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", config.Version, date, commit)
	app.Usage = "ENS160 air quality and AHT21 climate sensors cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to YAML configuration file",
			EnvVars: []string{"SENSORS_CONFIG"},
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		ctx.Context = snsctx.SetVerbose(ctx.Context, ctx.Bool("verbose"))
		console.Trace = ctx.Bool("verbose")

		loaded, err := config.Load(ctx.String("config"))
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		cfg = loaded
		return nil
	}
	app.Commands = cli.Commands{
		&airCmd,
		&tempCmd,
		&monitorCmd,
		&configCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}
