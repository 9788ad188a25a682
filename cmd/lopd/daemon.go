// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/configstore"
	"grimm.is/flywall/internal/firewall"
	"grimm.is/flywall/internal/install"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
	"grimm.is/flywall/internal/lopnetif"
	"grimm.is/flywall/internal/metrics"
	"grimm.is/flywall/internal/netif"
	"grimm.is/flywall/internal/reportbus"
	"grimm.is/flywall/internal/sampler"
	"grimm.is/flywall/internal/sampler/ebpfsampler"
	"grimm.is/flywall/internal/sampler/pcapsampler"
)

type daemonOpts struct {
	configFile string
	mapIfName  string
	uplinkIf   string
	useEBPF    bool
	ebpfObject string
	reportAddr string
	metricAddr string
	verbose    bool
}

// daemon holds every live C1-C9 component for the lifetime of one run,
// so Close can tear them down in reverse order on shutdown.
type daemon struct {
	log *logging.Logger

	netifObs  *netif.Observer
	sampler   lop.Sampler
	core      *lop.Core
	store     *configstore.Store
	prefixW   *configstore.PrefixWatcher
	bus       *reportbus.Bus
	fwMgr     *firewall.Manager
	fwReg     *firewall.RuleRegistry
	metricSrv *http.Server
}

func runDaemon(opts daemonOpts) error {
	level := logging.LevelNotice
	if opts.verbose {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{Level: level}).With("lopd")
	log.Notice("starting lopd")

	if err := os.MkdirAll(install.GetRunDir(), 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := writePIDFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer removePIDFile()

	d, err := buildDaemon(opts, log)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.loadAndApply(opts.configFile); err != nil {
		return fmt.Errorf("initial config apply: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := d.netifObs.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn("lopd: netif observer exited", "err", err)
		}
	}()

	d.run(ctx, opts.configFile)
	log.Notice("stopping lopd")
	return nil
}

// buildDaemon constructs every C1-C9 component but does not yet apply
// any configuration: that happens once, explicitly, in loadAndApply, so
// a bad config file fails startup cleanly instead of leaving half the
// pipeline running against defaults.
func buildDaemon(opts daemonOpts, log *logging.Logger) (*daemon, error) {
	d := &daemon{log: log}

	d.netifObs = netif.NewObserver(log.With("netif"))

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// d.core doesn't exist until after its Sampler is built, but both
	// sampler backends only accept an onSample callback at construction
	// time. Close over &d.core instead of d.core itself; no sample can
	// arrive before Core.NewStream enables the backend, which can't
	// happen until after d.core is assigned below.
	core := &d.core
	if opts.useEBPF {
		onSample := func(ifindex uint32, raw lop.RawSample) {
			if *core == nil {
				return
			}
			sampler.NewEBPFCoreHandler(*core, resolveIfindex)(ifindex, raw)
		}
		s, err := ebpfsampler.New(opts.ebpfObject, onSample, log.With("ebpfsampler"))
		if err != nil {
			return nil, fmt.Errorf("open ebpf sampler: %w", err)
		}
		d.sampler = s
	} else {
		onSample := func(raw lop.RawSample) {
			if *core != nil {
				sampler.NewCoreHandler(*core)(raw)
			}
		}
		d.sampler = pcapsampler.New(onSample, log.With("pcapsampler"))
	}

	d.core = lop.NewCore(ctx, d.sampler, clock.Real{}, log.With("lop"))
	d.core.SetMetrics(collector)
	lopnetif.Attach(d.netifObs, d.core)

	factory := &configstore.SysfsThermalFactory{
		FanSysfsPath:    "/sys/class/hwmon/hwmon0/pwm1",
		FanRPMSysfsPath: "/sys/class/hwmon/hwmon0/fan1_input",
		LEDSysfsPath:    "/sys/class/leds/status/brightness",
	}
	d.store = configstore.NewStore(opts.mapIfName, factory, d.core, log.With("configstore"))
	d.store.SetMetrics(collector)

	if opts.reportAddr != "" {
		sender, err := newUDPSender(opts.reportAddr)
		if err != nil {
			return nil, fmt.Errorf("open report sender: %w", err)
		}
		d.bus = reportbus.New(sender, 64, log.With("reportbus"))
		d.store.SetReportSink(d.bus.ReportFunc)
	}

	if opts.uplinkIf != "" {
		pw, err := configstore.NewPrefixWatcher(opts.uplinkIf, d.store, log.With("prefixwatch"))
		if err != nil {
			log.Warn("lopd: prefix watcher unavailable", "interface", opts.uplinkIf, "err", err)
		} else {
			d.prefixW = pw
		}
	}

	cacheDir := filepath.Join(install.GetCacheDir(), "firewall")
	fwMgr, err := firewall.NewManager(log.With("firewall"), cacheDir)
	if err != nil {
		log.Warn("lopd: firewall manager unavailable, rule registry disabled", "err", err)
	} else {
		d.fwMgr = fwMgr
		d.fwReg = firewall.NewRuleRegistry(nil)
		if opts.metricAddr != "" {
			if err := d.fwReg.UpsertRule(metricsAllowRule(opts.metricAddr)); err != nil {
				log.Warn("lopd: failed to open metrics port in the firewall", "err", err)
			}
		}
	}

	if opts.metricAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		d.metricSrv = &http.Server{Addr: opts.metricAddr, Handler: mux}
		go func() {
			if err := d.metricSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("lopd: metrics server exited", "err", err)
			}
		}()
	}

	return d, nil
}

// metricsAllowRule builds the input-accept rule for the Prometheus
// metrics listener, so enabling -metrics-addr doesn't silently leave
// the port unreachable behind a default-deny firewall policy.
func metricsAllowRule(addr string) firewall.RuleRow {
	_, port, _ := net.SplitHostPort(addr)
	return firewall.RuleRow{
		Name:     "lopd-metrics",
		Enable:   true,
		Priority: 100,
		Protocol: "ipv4",
		Table:    "flywall",
		Chain:    "input",
		Target:   "accept",
		Rule:     "tcp dport " + port,
	}
}

// resolveIfindex satisfies sampler.IfindexResolver using the standard
// library; the ebpf backend only has the kernel ifindex to go on.
func resolveIfindex(ifindex int) (string, error) {
	iface, err := net.InterfaceByIndex(ifindex)
	if err != nil {
		return "", err
	}
	return iface.Name, nil
}

func (d *daemon) loadAndApply(path string) error {
	result, err := config.LoadFileWithOptions(path, config.DefaultLoadOptions())
	if err != nil {
		return err
	}
	return d.store.Apply(result.Config)
}

func (d *daemon) run(ctx context.Context, configFile string) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			d.log.Notice("lopd: reloading configuration", "file", configFile)
			if err := d.loadAndApply(configFile); err != nil {
				d.log.Error("lopd: config reload failed", "err", err)
			}
		case syscall.SIGINT, syscall.SIGTERM:
			d.log.Notice("lopd: received shutdown signal", "signal", sig)
			return
		}
	}
}

// Close tears down every component buildDaemon started, in reverse
// dependency order (watchers and servers before the store they drive).
func (d *daemon) Close() {
	if d.metricSrv != nil {
		_ = d.metricSrv.Close()
	}
	if d.prefixW != nil {
		_ = d.prefixW.Close()
	}
	if d.bus != nil {
		d.bus.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.core != nil {
		d.core.Close()
	}
}
