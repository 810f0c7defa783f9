package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	sensors "github.com/SinaHosseini7/ens160-aht21"
	"github.com/SinaHosseini7/ens160-aht21/adapter"
	"github.com/SinaHosseini7/ens160-aht21/cmd/sensors/console"
	"github.com/SinaHosseini7/ens160-aht21/i2c"
	"github.com/SinaHosseini7/ens160-aht21/pkg/config"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus adapter: mcp2221, generic or nanopi",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "periph bus name for the generic adapter",
	},
}

// openBus returns the transport selected by flags or configuration and a
// function releasing it.
func openBus(c *cli.Context) (sensors.RegisterBus, func(), error) {
	busCfg := cfg.Bus
	if c.IsSet("adapter") {
		busCfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		busCfg.Device = c.String("device")
	}
	switch busCfg.Adapter {
	case config.AdapterMCP2221:
		ad := adapter.NewMCP2221()
		if err := ad.Init(); err != nil {
			return nil, nil, err
		}
		return ad, func() {}, nil
	case config.AdapterGeneric:
		bus, err := i2c.NewGenericBus(busCfg.Device)
		if err != nil {
			return nil, nil, err
		}
		if busCfg.SpeedKHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(busCfg.SpeedKHz) * physic.KiloHertz); err != nil {
				console.Warnf("could not set bus speed: %s", err)
			}
		}
		return bus, func() {
			if err := bus.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, busCfg.Number)
		return bus, func() {
			if err := bus.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
			if err := npi.I2cBusAdaptor.Finalize(); err != nil {
				console.Errorf("error finalizing adaptor: %s", console.Red(err))
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", busCfg.Adapter)
}
