package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/SinaHosseini7/ens160-aht21/air"
	"github.com/SinaHosseini7/ens160-aht21/cmd/sensors/console"
	"github.com/SinaHosseini7/ens160-aht21/environment"
	"github.com/SinaHosseini7/ens160-aht21/monitor"
)

// monitorInterval returns the --interval flag when set and the configured
// interval otherwise.
func monitorInterval(c *cli.Context) (time.Duration, error) {
	interval := cfg.Monitor.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return interval, nil
}

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "continuously measure air quality with temperature/humidity compensation",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "time between measurements"},
		&cli.StringFlag{Name: "listen-address", Usage: "address of the Prometheus /metrics endpoint, empty disables it"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		interval, err := monitorInterval(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		listen := cfg.Monitor.MetricsAddress
		if c.IsSet("listen-address") {
			listen = c.String("listen-address")
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus, closeBus, err := openBus(c)
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		defer closeBus()

		aht, err := environment.NewAHT21(ctx, bus, environment.WithAHT21Address(cfg.AHT21.Address))
		if err != nil {
			return console.Exit(1, "AHT21 initialization error: %s", console.Red(err))
		}
		console.Infof("AHT21 calibrated and ready")
		ens, err := air.NewENS160(ctx, bus, air.WithENS160Address(cfg.ENS160.Address))
		if err != nil {
			return console.Exit(1, "ENS160 initialization error: %s", console.Red(err))
		}
		console.Infof("ENS160 initialized and ready")
		if ver, err := ens.FirmwareVersion(ctx); err == nil {
			console.Infof("firmware version: %s", ver)
		} else {
			console.Warnf("firmware version unavailable: %s", err)
		}

		opts := []monitor.Opt{monitor.WithRetries(cfg.AHT21.Retries)}
		if listen != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewBuildInfoCollector())
			opts = append(opts, monitor.WithMetrics(monitor.NewMetrics(reg)))
			srv := serveMetrics(listen, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
		mon := monitor.New(aht, ens, opts...)

		console.Infof("sensor needs 3 minutes of warm-up after power-on and 24 hours of initial startup on first use")
		warmupShown := false
		err = mon.Run(ctx, interval, func(r monitor.Reading, err error) {
			n := mon.Stats().Measurements
			if err != nil {
				console.Warnf("[%04d] %s", n, err)
				return
			}
			prefix := fmt.Sprintf("[%04d] T:%5.1f°C H:%5.1f%%RH | ", n, r.TemperatureC, r.HumidityPct)
			switch {
			case r.Valid:
				warmupShown = false
				aqi := console.AQIColor(r.Measurement.AQI)(fmt.Sprintf("AQI:%d(%-9s)", r.Measurement.AQI, r.Rating))
				console.Printf("%s%s TVOC:%5dppb eCO2:%5dppm\n", prefix, aqi, r.Measurement.TVOC, r.Measurement.ECO2)
				if r.PoorAir() {
					console.PInfof(console.PictoWarning, "poor air quality, ventilation recommended")
				}
			case r.Status == air.ModeWarmup.String() && !warmupShown:
				warmupShown = true
				console.Printf("%s%s warming up (3 min after power-on)...\n", prefix, console.PictoHourglass)
			case r.Status == air.ModeWarmup.String():
				console.Printf("%s%s warming up...\n", prefix, console.PictoHourglass)
			case r.Status == air.ModeInitialStartup.String():
				console.Printf("%sinitial startup (24h continuous power needed)\n", prefix)
			default:
				console.Printf("%sstatus: %s\n", prefix, r.Status)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(1, "monitor error: %s", console.Red(err))
		}
		printStats(mon.Stats())
		return nil
	},
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func printStats(s monitor.Stats) {
	console.Print("")
	console.PInfof(console.PictoFinish, "shutdown gracefully")
	console.Print(console.Bold("statistics"))
	console.Printf("  total measurements: %d\n  valid readings: %d\n  errors: %d\n", s.Measurements, s.Valid, s.Errors)
	if s.Valid == 0 {
		console.Print("no valid readings obtained")
		return
	}
	console.Printf("  error rate: %.2f%%\n", s.ErrorRate())
	console.PInfof(console.PictoLeaf, "air quality summary")
	console.Printf("  best AQI: %d (%s)\n  worst AQI: %d (%s)\n", s.BestAQI, air.Rating(s.BestAQI), s.WorstAQI, air.Rating(s.WorstAQI))
	console.Printf("  average TVOC: %d ppb\n  average eCO2: %d ppm\n", s.AverageTVOC(), s.AverageECO2())
}
