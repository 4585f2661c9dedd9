// Copyright 2025 Google LLC
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

package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/clock"
	"github.com/fluxfs/fluxdir/journal"
	"github.com/fluxfs/fluxdir/logger"
	"github.com/fluxfs/fluxdir/metrics"
	"github.com/fluxfs/fluxdir/namespace"
	"github.com/fluxfs/fluxdir/vfsfuse"
	"github.com/fluxfs/fluxdir/xattr"
)

var (
	metricsAddr   string
	epochInterval time.Duration
)

var mountCmd = &cobra.Command{
	Use:   "mount volume mount_point",
	Short: "Mount a fluxdir volume",
	Long: `Mount exposes a formatted fluxdir volume through FUSE. Historical
versions are reachable by suffixing any name with the flux token, e.g.
"cat dir@3/file" or "ls dir@yesterday".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		return runMount(args[0], args[1], c)
	},
}

func init() {
	mountCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus /metrics on. Empty disables metrics.")
	mountCmd.Flags().DurationVar(&epochInterval, "epoch-advance-interval", 0, "How often to advance the system epoch while mounted. Zero disables automatic advancement.")
	rootCmd.AddCommand(mountCmd)
}

// setupMetrics installs the OTel Prometheus bridge and serves /metrics.
func setupMetrics(addr string) (metrics.Handle, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("mount: metrics server: %v", err)
		}
	}()

	return metrics.NewOTelMetrics()
}

func runMount(volumePath, mountPoint string, c *cfg.Config) error {
	v, err := openVolume(volumePath, c)
	if err != nil {
		return err
	}

	handle := metrics.NewNoopMetrics()
	if metricsAddr != "" {
		if handle, err = setupMetrics(metricsAddr); err != nil {
			v.dev.Close()
			return err
		}
	}

	clk := clock.RealClock{}
	deps := namespace.Deps{
		Dev:     v.dev,
		Table:   v.table,
		Journal: journal.NewMemManager(),
		SB:      v.sb,
		Attrs:   xattr.NewMemStore(),
		Clock:   clk,
		Metrics: handle,
	}
	ops := namespace.New(deps, c)

	root, err := v.table.Get(v.root)
	if err != nil {
		v.dev.Close()
		return err
	}

	server, err := vfsfuse.NewServer(vfsfuse.ServerConfig{
		Ops:   ops,
		Table: v.table,
		SB:    v.sb,
		Root:  root,
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	})
	if err != nil {
		v.table.Put(root)
		v.dev.Close()
		return err
	}

	mfs, err := vfsfuse.Mount(context.Background(), mountPoint, "fluxdir", server, log.New(os.Stderr, "fuse: ", 0))
	if err != nil {
		v.dev.Close()
		return err
	}
	logger.Infof("mount: %s on %s (epoch %d)", volumePath, mountPoint, v.sb.SystemEpoch())

	stopAdvance := make(chan struct{})
	if epochInterval > 0 {
		go func() {
			for {
				select {
				case <-stopAdvance:
					return
				case <-clk.After(epochInterval):
					logger.Debugf("mount: advanced system epoch to %d", v.sb.AdvanceEpoch())
				}
			}
		}()
	}

	// Unmount on SIGINT/SIGTERM so Join returns and the manifest is saved.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Infof("mount: signal received, unmounting %s", mountPoint)
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Errorf("mount: unmount: %v", err)
		}
	}()

	err = mfs.Join(context.Background())
	close(stopAdvance)
	if cerr := v.close(); err == nil {
		err = cerr
	}
	return err
}
