// Command slave-rnd runs one or more Modbus transports backed by a
// stateless responder that fabricates a fresh value on every read and
// acknowledges every write without recording it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/launcher"
	"github.com/modbus-emu/slave/logging"
)

func main() {
	app := &cli.App{
		Name:      "slave-rnd",
		Usage:     "emulate a Modbus slave that answers every read with fresh random data",
		ArgsUsage: "<transport> [<transport> ...]",
		UsageText: "slave-rnd tcp:0.0.0.0:502 udp:0.0.0.0:502 serial:/dev/ttyUSB0:19200-8-N-1",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one transport descriptor is required", 1)
	}

	logger := logging.NewLogger(logging.WithLevel(logging.LevelFromString(os.Getenv("MODBUS_LOG"))))

	descriptors := make([]launcher.Descriptor, 0, c.NArg())
	for _, raw := range c.Args().Slice() {
		d, err := launcher.ParseDescriptor(raw)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		descriptors = append(descriptors, d)
	}

	fleet, err := launcher.Build(descriptors, backend.NewRandom(), logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal, stopping transports")
		if err := fleet.Stop(ctx); err != nil {
			logger.Error(err.Error())
		}
		cancel()
	}()

	logger.Info("starting slave-rnd")
	if err := fleet.Start(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	<-ctx.Done()
	logger.Info("slave-rnd shutdown complete")
	return nil
}
