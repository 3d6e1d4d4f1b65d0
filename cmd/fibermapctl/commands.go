package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fibermap/core-go/internal/config"
	"fibermap/core-go/internal/db"
	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/httpapi"
	"fibermap/core-go/internal/locator"
	"fibermap/core-go/internal/topology"
)

type rootFlags struct {
	databaseURL string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "fibermapctl",
		Short:         "Query fiber routes, cabinets and the device topology",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(newNearestCmd(&flags))
	root.AddCommand(newOptionsCmd(&flags))
	root.AddCommand(newRouteCmd(&flags))
	root.AddCommand(newLayoutCmd(&flags))
	return root
}

type pointFlags struct {
	lat, lon float64
}

func (p *pointFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&p.lat, "lat", 0, "Latitude in degrees")
	cmd.Flags().Float64Var(&p.lon, "lon", 0, "Longitude in degrees")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
}

func (p pointFlags) point() (geo.Point, error) {
	pt := geo.NewPoint(p.lat, p.lon)
	if !pt.Valid() {
		return geo.Point{}, fmt.Errorf("%.6f,%.6f: %w", p.lat, p.lon, locator.ErrInvalidPoint)
	}
	return pt, nil
}

// radiusFlag returns nil unless --radius-km was given so the configured maximum
// applies.
func radiusFlag(cmd *cobra.Command, v float64) *float64 {
	if !cmd.Flags().Changed("radius-km") {
		return nil
	}
	return &v
}

func newNearestCmd(flags *rootFlags) *cobra.Command {
	var pt pointFlags
	var radius float64
	cmd := &cobra.Command{
		Use:   "nearest",
		Short: "Nearest active cabinet, with the fiber route when one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := pt.point()
			if err != nil {
				return err
			}
			return withLocator(cmd, flags, func(ctx context.Context, svc *locator.Service) error {
				res, err := svc.NearestCabinet(ctx, q, radiusFlag(cmd, radius))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	pt.register(cmd)
	cmd.Flags().Float64Var(&radius, "radius-km", 0, "Search radius in km")
	return cmd
}

func newOptionsCmd(flags *rootFlags) *cobra.Command {
	var pt pointFlags
	var radius float64
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Up to ten cabinets ordered by straight-line distance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := pt.point()
			if err != nil {
				return err
			}
			return withLocator(cmd, flags, func(ctx context.Context, svc *locator.Service) error {
				opts, err := svc.PlanOptions(ctx, q, radiusFlag(cmd, radius))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), opts)
			})
		},
	}
	pt.register(cmd)
	cmd.Flags().Float64Var(&radius, "radius-km", 0, "Search radius in km")
	return cmd
}

func newRouteCmd(flags *rootFlags) *cobra.Command {
	var pt pointFlags
	var cabinet string
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Fiber route from a point to a cabinet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := pt.point()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(cabinet)
			if err != nil {
				return fmt.Errorf("cabinet id %q: %w", cabinet, err)
			}
			return withLocator(cmd, flags, func(ctx context.Context, svc *locator.Service) error {
				res, err := svc.PlanRoute(ctx, q, id.String())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	pt.register(cmd)
	cmd.Flags().StringVar(&cabinet, "cabinet", "", "Cabinet uuid")
	_ = cmd.MarkFlagRequired("cabinet")
	return cmd
}

func newLayoutCmd(flags *rootFlags) *cobra.Command {
	var file string
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Layered topology layout from a JSON file or the device store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts := topology.DefaultOptions()
			opts.WarnBps = cfg.Weathermap.WarnBps
			opts.HighBps = cfg.Weathermap.HighBps

			if file != "" {
				devices, m, err := readLayoutInput(file)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), topology.Layout(devices, m, opts))
			}

			pool, err := openPool(cmd.Context(), flags, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			devices, m, err := topology.LoadFromStore(cmd.Context(), pool.Queries(), time.Now().Add(-window))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), topology.Layout(devices, m, opts))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read devices and metrics from a JSON file instead of the database")
	cmd.Flags().DurationVar(&window, "window", 15*time.Minute, "Ignore bandwidth samples older than this")
	return cmd
}

func readLayoutInput(path string) ([]topology.Device, topology.Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, topology.Metrics{}, err
	}
	var in topology.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, topology.Metrics{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validator.New().Struct(in); err != nil {
		return nil, topology.Metrics{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	devices, m := in.Build()
	return devices, m, nil
}

func withLocator(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *locator.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := openPool(cmd.Context(), flags, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := locator.New(newLogger(cmd, flags), pool.Queries(), locator.Options{
		Defaults: locator.Settings{
			NearestSearchMaxKm:        cfg.Map.NearestSearchMaxKm,
			SnapMaxM:                  cfg.Map.SnapMaxM,
			AllowStraightlineFallback: cfg.Map.AllowStraightlineFallback,
		},
	})
	return fn(cmd.Context(), svc)
}

func openPool(ctx context.Context, flags *rootFlags, cfg config.Config) (*db.Pool, error) {
	url := flags.databaseURL
	if url == "" {
		url = cfg.DatabaseURL
	}
	if url == "" {
		return nil, errors.New("no database configured: pass --database-url or set DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.Open(ctx, url)
}

func newLogger(cmd *cobra.Command, flags *rootFlags) zerolog.Logger {
	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	return httpapi.NewConsoleLogger(cmd.ErrOrStderr(), level)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
