package brewmon

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/brewkit/brewmon/internal/config"
	"github.com/brewkit/brewmon/internal/history"
	hfactory "github.com/brewkit/brewmon/internal/history/factory"
	"github.com/brewkit/brewmon/internal/machine"
	"github.com/brewkit/brewmon/internal/metrics"
	"github.com/brewkit/brewmon/internal/monitor"
	iapi "github.com/brewkit/brewmon/internal/server"
	"github.com/brewkit/brewmon/internal/store"
	sfactory "github.com/brewkit/brewmon/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type MachineConfig = machine.Config

type Machine = machine.Machine

type CoffeeType = machine.CoffeeType

type Record = store.Record

type MaintenanceEntry = store.MaintenanceEntry

type HistoryQuery = store.HistoryQuery

type Store = store.Store

type HistorySink = history.Sink

type Monitor = monitor.Monitor

type MonitorStatus = monitor.Status

type Snapshot = monitor.Snapshot

// LoadConfig reads the TOML configuration file.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// DefaultConfig returns the built-in defaults, for embedding without a file.
func DefaultConfig() Config { return cfg.Default() }

// NewMachine builds the Modbus RTU driver for the machine.
func NewMachine(mc MachineConfig, logger *slog.Logger) *Machine {
	return machine.New(mc, logger)
}

// NewStore builds a delivery record store from a DSN
// (postgres://, sqlite://, memory:// or a bare file path).
func NewStore(dsn string) (Store, error) { return sfactory.New(dsn) }

// NewHistorySinks builds one fan-out sink from the configured DSNs.
// An empty list yields a nil sink, which the monitor treats as "no export".
func NewHistorySinks(dsns []string) (HistorySink, error) {
	if len(dsns) == 0 {
		return nil, nil
	}
	var f history.Fanout
	for _, dsn := range dsns {
		s, err := hfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return nil, err
		}
		f = append(f, s)
	}
	if len(f) == 1 {
		return f[0], nil
	}
	return f, nil
}

// machineReader adapts the machine driver to the monitor's reader interface.
type machineReader struct{ m *Machine }

func (r machineReader) ReadGroup(group int) (monitor.Snapshot, error) {
	sel, err := r.m.GroupSelection(group)
	if err != nil {
		return monitor.Snapshot{}, err
	}
	ct, _ := sel.CoffeeType()
	return monitor.Snapshot{
		Group:      group,
		Active:     sel.Active(),
		CoffeeType: string(ct),
		TakenAt:    time.Now(),
	}, nil
}

// NewMachineReader exposes a machine as a monitor.SnapshotReader.
func NewMachineReader(m *Machine) monitor.SnapshotReader { return machineReader{m: m} }

// NewMonitor wires a monitor over a reader, store and optional history sink.
func NewMonitor(groups int, reader monitor.SnapshotReader, st Store, sink HistorySink, logger *slog.Logger) *Monitor {
	tracker := monitor.NewTracker(st, sink, logger)
	return monitor.New(monitor.Config{Groups: groups}, reader, tracker, logger)
}

// NewRouter builds the embeddable HTTP handler set.
func NewRouter(m *Machine, mon *Monitor, st Store, basePath string, logger *slog.Logger) *iapi.Router {
	return iapi.NewRouter(m, mon, st, basePath, logger)
}

// NewHTTPServer starts an HTTP server exposing the API.
func NewHTTPServer(addr, basePath string, m *Machine, mon *Monitor, st Store, logger *slog.Logger) *http.Server {
	return iapi.NewServer(addr, NewRouter(m, mon, st, basePath, logger))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler returns the /metrics handler for embedding in another mux.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
