// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command beamsim tracks a bunch through a ring with collective effects.
//
//	beamsim run --config run.yaml --turns 1000
//	beamsim config > run.yaml
//	beamsim device
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ajroetker/go-beamdyn/beam"
	"github.com/ajroetker/go-beamdyn/internal/config"
	"github.com/ajroetker/go-beamdyn/internal/cpuinfo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "beamsim:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "beamsim",
		Short:         "Longitudinal beam dynamics with collective effects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newConfigCmd(), newDeviceCmd())
	return root
}

// bindFlags binds each flag to its configuration key. Only flags set on the
// command line override the file and the environment.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("no flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func newRunCmd() *cobra.Command {
	v := viper.New()
	var path string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track a bunch for the configured number of turns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, path)
			if err != nil {
				return err
			}
			summary, err := simulate(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return summary.Write(cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&path, "config", "c", "", "YAML configuration file")
	fs.Int("turns", 0, "number of turns (overrides ring.turns)")
	fs.Int("particles", 0, "number of macroparticles (overrides beam.particles)")
	fs.Int("workers", 0, "worker goroutines, 0 for GOMAXPROCS")
	fs.String("precision", "", "single or double")
	fs.String("strategy", "", "histogram strategy: auto, naive, shared or hybrid")
	fs.String("solver", "", "drift solver: simple, legacy or exact")
	fs.Bool("interpolation", false, "fused interpolated kick and drift")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("snapshot", "", "wake-memory snapshot file written at the end of the run")
	fs.Bool("resume", false, "restore the snapshot before tracking")
	if err := bindFlags(v, fs, map[string]string{
		"turns":         "ring.turns",
		"particles":     "beam.particles",
		"workers":       "device.workers",
		"precision":     "precision",
		"strategy":      "profile.strategy",
		"solver":        "tracker.solver",
		"interpolation": "tracker.interpolation",
		"log-level":     "log.level",
		"snapshot":      "snapshot.path",
		"resume":        "snapshot.resume",
	}); err != nil {
		panic(err)
	}
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Default().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newDeviceCmd() *cobra.Command {
	var workers, shared int
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Report the detected CPU features and device description",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := beam.DetectDevice().WithWorkers(workers).WithSharedMemory(shared)
			return cpuinfo.Write(cmd.OutOrStdout(), d)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines, 0 for GOMAXPROCS")
	cmd.Flags().IntVar(&shared, "shared-memory", 0, "fast memory per work group in bytes, 0 to detect")
	return cmd
}
