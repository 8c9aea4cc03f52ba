package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"adsbtrack/internal/app"
	"adsbtrack/internal/source"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := app.DefaultConfig()
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:   "adsbtrack",
		Short: "ADS-B aircraft tracker",
		Long: `ADS-B aircraft tracker.

Reads Mode S frames from a receiver feed, an RTL-SDR dongle or a recorded
PostgreSQL table, resolves CPR positions, keeps one track per aircraft and
writes periodic track snapshots as BaseStation lines, JSON/msgpack files or
database rows.

Example usage:
  adsbtrack tcp localhost:30005 --sbs
  adsbtrack stdin --format avr -o ./tracks < frames.txt
  adsbtrack replay --db-url postgres://localhost/adsb --postgres
  adsbtrack rtlsdr --device 0 --gain 40 --http :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				app.ShowVersion(cmd.OutOrStdout())
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")

	flags := rootCmd.PersistentFlags()

	// tracking
	flags.DurationVar(&config.PairWindow, "pair-window", config.PairWindow, "Maximum gap between even and odd CPR frames")
	flags.DurationVar(&config.StaleAfter, "stale-after", config.StaleAfter, "Drop aircraft not heard from for this long")
	flags.DurationVar(&config.LocalFreshness, "local-freshness", config.LocalFreshness, "Maximum age of the reference fix for local decoding")
	flags.DurationVar(&config.SweepInterval, "sweep-interval", config.SweepInterval, "How often stale aircraft are evicted")
	flags.StringVar(&config.Reference, "reference", "", "Receiver location as lat,lon (resolves surface positions)")

	// output
	flags.DurationVar(&config.EmitInterval, "emit-interval", config.EmitInterval, "Minimum time between records for one aircraft (0 for every update)")
	flags.DurationVar(&config.FlushInterval, "flush-interval", config.FlushInterval, "How often changed aircraft are written")
	flags.StringVar(&config.AltitudeUnit, "altitude-unit", config.AltitudeUnit, "Altitude unit: feet or meters")
	flags.StringVar(&config.SpeedUnit, "speed-unit", config.SpeedUnit, "Speed unit: knots, mps or kmh")
	flags.BoolVar(&config.BaseStation, "sbs", false, "Write BaseStation (SBS) lines to stdout")
	flags.StringVarP(&config.OutputDir, "output-dir", "o", "", "Write daily record files to this directory")
	flags.StringVar(&config.OutputFormat, "output-format", config.OutputFormat, "Record file format: json or msgpack")
	flags.BoolVarP(&config.RotateUTC, "utc", "u", config.RotateUTC, "Use UTC dates for record file rotation")
	flags.IntVar(&config.RetainDays, "retain-days", 0, "Delete record files older than this many days (0 keeps all)")
	flags.BoolVar(&config.Postgres, "postgres", false, "Write records to PostgreSQL")
	flags.StringVar(&config.SourceName, "source-name", config.SourceName, "Source label stored with database records")

	// database
	flags.StringVar(&config.Database.URL, "db-url", "", "PostgreSQL connection URL (overrides the other db flags)")
	flags.StringVar(&config.Database.Host, "db-host", "", "PostgreSQL host")
	flags.IntVar(&config.Database.Port, "db-port", config.Database.Port, "PostgreSQL port")
	flags.StringVar(&config.Database.User, "db-user", "", "PostgreSQL user")
	flags.StringVar(&config.Database.Password, "db-password", "", "PostgreSQL password")
	flags.StringVar(&config.Database.Database, "db-name", "", "PostgreSQL database")
	flags.StringVar(&config.Database.SSLMode, "db-sslmode", config.Database.SSLMode, "PostgreSQL SSL mode")

	// service
	flags.StringVar(&config.HTTPAddr, "http", "", "Serve the HTTP API on this address")
	flags.DurationVar(&config.StatsInterval, "stats-interval", config.StatsInterval, "How often statistics are logged")
	flags.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "Grace period for a clean shutdown")

	// logging
	flags.BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose logging")
	flags.StringVar(&config.LogFormat, "log-format", config.LogFormat, "Log format: text or json")
	flags.StringVar(&config.LogFile, "log-file", "", "Also write logs to this file, rotated by size")
	flags.IntVar(&config.LogMaxSize, "log-max-size", config.LogMaxSize, "Log file size in MB before rotation")

	rootCmd.AddCommand(
		newTCPCmd(&config),
		newStdinCmd(&config),
		newReplayCmd(&config),
		newRTLSDRCmd(&config),
	)
	return rootCmd
}

func newTCPCmd(config *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tcp [host[:port]]",
		Short: "Read frames from a receiver's TCP output",
		Long: `Read frames from a receiver's TCP output (dump1090, readsb, ...).
The port defaults to 30005 for Beast and 30002 for AVR.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Source = app.SourceTCP
			format, err := source.ParseFormat(config.Format)
			if err != nil {
				return err
			}
			addr := "localhost"
			if len(args) == 1 {
				addr = args[0]
			}
			config.Addr = withDefaultPort(addr, format.DefaultPort())
			return run(cmd, *config)
		},
	}
	cmd.Flags().StringVar(&config.Format, "format", app.DefaultFormat, "Frame format: beast or avr")
	return cmd
}

func newStdinCmd(config *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stdin",
		Short: "Read frames from standard input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Source = app.SourceStdin
			return run(cmd, *config)
		},
	}
	cmd.Flags().StringVar(&config.Format, "format", string(source.FormatAVR), "Frame format: avr or beast")
	return cmd
}

func newReplayCmd(config *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay frames recorded in a PostgreSQL pings table",
		Long: `Replay frames recorded in a PostgreSQL pings(timestamp, data) table in
timestamp order. Tracking windows use the recorded timestamps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Source = app.SourceReplay
			return run(cmd, *config)
		},
	}
	cmd.Flags().StringVar(&config.ReplayQuery, "query", config.ReplayQuery, "Query selecting (timestamp, data) rows")
	return cmd
}

func newRTLSDRCmd(config *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtlsdr",
		Short: "Capture and demodulate from an RTL-SDR dongle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Source = app.SourceRTLSDR
			return run(cmd, *config)
		},
	}
	cmd.Flags().Uint32VarP(&config.Frequency, "frequency", "f", config.Frequency, "Frequency to tune to (Hz)")
	cmd.Flags().Uint32VarP(&config.SampleRate, "sample-rate", "s", config.SampleRate, "Sample rate (Hz)")
	cmd.Flags().Float64VarP(&config.Gain, "gain", "g", config.Gain, "Gain in dB (0 for auto)")
	cmd.Flags().IntVarP(&config.DeviceIndex, "device", "d", 0, "RTL-SDR device index")
	cmd.Flags().IntVar(&config.PPM, "ppm", 0, "Frequency correction (ppm)")
	return cmd
}

func run(cmd *cobra.Command, config app.Config) error {
	logger, closer := app.NewLogger(config, cmd.ErrOrStderr())
	defer closer.Close()

	application := app.NewApplication(config, logger)
	return application.Run(cmd.Context())
}

// withDefaultPort appends port when addr has none
func withDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}
