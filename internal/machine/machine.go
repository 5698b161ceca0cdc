package machine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// ErrUnavailable indicates the machine could not be reached over the serial
// bus. Callers treat it as transient; the next poll cycle retries.
var ErrUnavailable = errors.New("machine unavailable")

// ErrGroupBusy is returned when a delivery command targets a group that is
// already running a delivery.
var ErrGroupBusy = errors.New("group busy")

// Config describes the serial connection to the machine.
type Config struct {
	Port        string        `toml:"port" mapstructure:"port"`
	Baudrate    int           `toml:"baudrate" mapstructure:"baudrate"`
	NodeAddress int           `toml:"node_address" mapstructure:"node_address"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// Machine drives a La Spaziale S50-QSS control board over Modbus RTU.
// All register access is serialized behind a single mutex; the protocol is
// strictly request/response on one serial line.
type Machine struct {
	cfg     Config
	logger  *slog.Logger
	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client
	open    bool
}

// Info is the static identification block read from the board.
type Info struct {
	SerialNumber    string    `json:"serial_number"`
	FirmwareVersion string    `json:"firmware_version"`
	NumberOfGroups  int       `json:"number_of_groups"`
	Blocked         bool      `json:"is_blocked"`
	Connected       bool      `json:"connection_status"`
	Port            string    `json:"port"`
	Baudrate        int       `json:"baudrate"`
	LastUpdated     time.Time `json:"last_updated"`
}

// GroupStatus aggregates the per-group registers for the status endpoint.
type GroupStatus struct {
	Selection      Selection `json:"selection"`
	SensorFault    bool      `json:"sensor_fault"`
	PurgeCountdown int       `json:"purge_countdown"`
	Busy           bool      `json:"is_busy"`
}

// Health is the result of a full diagnostic sweep.
type Health struct {
	Connected bool                `json:"connection"`
	Blocked   bool                `json:"machine_blocked"`
	Groups    map[int]GroupStatus `json:"groups_status"`
	Errors    []string            `json:"errors"`
	Overall   string              `json:"overall_status"`
	Timestamp time.Time           `json:"timestamp"`
}

func New(cfg Config, logger *slog.Logger) *Machine {
	if cfg.Port == "" {
		cfg.Port = "/dev/ttyUSB0"
	}
	if cfg.Baudrate <= 0 {
		cfg.Baudrate = 9600
	}
	if cfg.NodeAddress <= 0 {
		cfg.NodeAddress = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := modbus.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.Baudrate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = byte(cfg.NodeAddress)
	h.Timeout = cfg.Timeout
	return &Machine{cfg: cfg, logger: logger, handler: h, client: modbus.NewClient(h)}
}

// Connect opens the serial line. Safe to call when already connected.
func (m *Machine) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked()
}

func (m *Machine) connectLocked() error {
	if m.open {
		return nil
	}
	if err := m.handler.Connect(); err != nil {
		m.logger.Error("serial connect failed", "port", m.cfg.Port, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.open = true
	m.logger.Info("connected to machine", "port", m.cfg.Port, "baudrate", m.cfg.Baudrate)
	return nil
}

// Disconnect closes the serial line.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil
	}
	m.open = false
	if err := m.handler.Close(); err != nil {
		return err
	}
	m.logger.Info("disconnected from machine", "port", m.cfg.Port)
	return nil
}

// Connected reports whether the serial line is open.
func (m *Machine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Port returns the configured serial port.
func (m *Machine) Port() string { return m.cfg.Port }

// Baudrate returns the configured line speed.
func (m *Machine) Baudrate() int { return m.cfg.Baudrate }

// readRegisters reads count holding registers starting at addr.
// Any transport failure closes the line and maps to ErrUnavailable so the
// next call reconnects.
func (m *Machine) readRegisters(addr, count uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectLocked(); err != nil {
		return nil, err
	}
	raw, err := m.client.ReadHoldingRegisters(addr, count)
	if err != nil {
		m.open = false
		_ = m.handler.Close()
		return nil, fmt.Errorf("%w: read registers %d-%d: %v", ErrUnavailable, addr, addr+count-1, err)
	}
	if len(raw) < int(count)*2 {
		return nil, fmt.Errorf("%w: short read at register %d", ErrUnavailable, addr)
	}
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return regs, nil
}

func (m *Machine) writeRegister(addr, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectLocked(); err != nil {
		return err
	}
	if _, err := m.client.WriteSingleRegister(addr, value); err != nil {
		m.open = false
		_ = m.handler.Close()
		return fmt.Errorf("%w: write register %d: %v", ErrUnavailable, addr, err)
	}
	m.logger.Debug("register written", "addr", addr, "value", value)
	return nil
}

// SerialNumber reads the 20-char board serial number.
func (m *Machine) SerialNumber() (string, error) {
	regs, err := m.readRegisters(regSerialNumber, regSerialNumLen)
	if err != nil {
		return "", err
	}
	b := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		b = append(b, byte(r>>8), byte(r&0xFF))
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// FirmwareVersion reads the firmware version as "major.minor".
func (m *Machine) FirmwareVersion() (string, error) {
	regs, err := m.readRegisters(regFirmware, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d", regs[0]>>8, regs[0]&0xFF), nil
}

// NumberOfGroups reads how many group heads the machine reports.
func (m *Machine) NumberOfGroups() (int, error) {
	regs, err := m.readRegisters(regGroupCount, 1)
	if err != nil {
		return 0, err
	}
	return int(regs[0]), nil
}

// Blocked reports whether the machine is in the blocked state.
func (m *Machine) Blocked() (bool, error) {
	regs, err := m.readRegisters(regBlocked, 1)
	if err != nil {
		return false, err
	}
	return regs[0] == 1, nil
}

// GroupSelection reads and decodes the delivery status register of a group.
func (m *Machine) GroupSelection(group int) (Selection, error) {
	if err := validGroup(group); err != nil {
		return Selection{}, err
	}
	regs, err := m.readRegisters(regSelectionBase+uint16(group-1), 1)
	if err != nil {
		return Selection{}, err
	}
	return decodeSelection(regs[0]), nil
}

// GroupBusy reports whether a group has an ongoing delivery.
func (m *Machine) GroupBusy(group int) (bool, error) {
	sel, err := m.GroupSelection(group)
	if err != nil {
		return false, err
	}
	return sel.Active(), nil
}

// SensorFault reports whether the volumetric sensor of a group is faulted.
func (m *Machine) SensorFault(group int) (bool, error) {
	if err := validGroup(group); err != nil {
		return false, err
	}
	regs, err := m.readRegisters(regSensorFault+uint16(group-1), 1)
	if err != nil {
		return false, err
	}
	return regs[0] == 1, nil
}

// PurgeCountdown reads the seconds until the automatic purge of a group.
func (m *Machine) PurgeCountdown(group int) (int, error) {
	if err := validGroup(group); err != nil {
		return 0, err
	}
	regs, err := m.readRegisters(regPurgeCountdown+uint16(group-1), 1)
	if err != nil {
		return 0, err
	}
	return int(regs[0]), nil
}

// Info reads the identification block.
func (m *Machine) Info() (Info, error) {
	serial, err := m.SerialNumber()
	if err != nil {
		return Info{}, err
	}
	fw, err := m.FirmwareVersion()
	if err != nil {
		return Info{}, err
	}
	groups, err := m.NumberOfGroups()
	if err != nil {
		return Info{}, err
	}
	blocked, err := m.Blocked()
	if err != nil {
		return Info{}, err
	}
	return Info{
		SerialNumber:    serial,
		FirmwareVersion: fw,
		NumberOfGroups:  groups,
		Blocked:         blocked,
		Connected:       m.Connected(),
		Port:            m.cfg.Port,
		Baudrate:        m.cfg.Baudrate,
		LastUpdated:     time.Now().UTC(),
	}, nil
}

// GroupsStatus reads the per-group registers for every reported group.
func (m *Machine) GroupsStatus() (map[int]GroupStatus, error) {
	n, err := m.NumberOfGroups()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > MaxGroups {
		n = 3
	}
	out := make(map[int]GroupStatus, n)
	for g := 1; g <= n; g++ {
		sel, err := m.GroupSelection(g)
		if err != nil {
			return nil, err
		}
		fault, err := m.SensorFault(g)
		if err != nil {
			return nil, err
		}
		cd, err := m.PurgeCountdown(g)
		if err != nil {
			return nil, err
		}
		out[g] = GroupStatus{Selection: sel, SensorFault: fault, PurgeCountdown: cd, Busy: sel.Active()}
	}
	return out, nil
}

// HealthCheck sweeps the machine state, collecting per-group errors instead
// of aborting on the first failure.
func (m *Machine) HealthCheck() Health {
	h := Health{
		Connected: m.Connected(),
		Groups:    make(map[int]GroupStatus),
		Timestamp: time.Now().UTC(),
	}
	blocked, err := m.Blocked()
	if err != nil {
		h.Errors = append(h.Errors, fmt.Sprintf("block status: %v", err))
	} else {
		h.Blocked = blocked
	}
	n, err := m.NumberOfGroups()
	if err != nil || n <= 0 || n > MaxGroups {
		n = 3
	}
	for g := 1; g <= n; g++ {
		sel, err := m.GroupSelection(g)
		if err != nil {
			h.Errors = append(h.Errors, fmt.Sprintf("group %d: %v", g, err))
			continue
		}
		fault, ferr := m.SensorFault(g)
		cd, _ := m.PurgeCountdown(g)
		gs := GroupStatus{Selection: sel, SensorFault: fault, PurgeCountdown: cd, Busy: sel.Active()}
		h.Groups[g] = gs
		if ferr == nil && fault {
			h.Errors = append(h.Errors, fmt.Sprintf("sensor fault detected on group %d", g))
		}
	}
	h.Connected = m.Connected()
	if len(h.Errors) == 0 && h.Connected {
		h.Overall = "healthy"
	} else {
		h.Overall = "unhealthy"
	}
	return h
}

// DeliverCoffee sends a delivery command to a group after verifying it is
// not already busy.
func (m *Machine) DeliverCoffee(group int, ct CoffeeType) error {
	if err := validGroup(group); err != nil {
		return err
	}
	cmd, err := commandFor(ct)
	if err != nil {
		return err
	}
	busy, err := m.GroupBusy(group)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w: group %d", ErrGroupBusy, group)
	}
	if err := m.writeRegister(regCommandBase+uint16(group-1), cmd); err != nil {
		return err
	}
	m.logger.Info("delivery command sent", "group", group, "coffee_type", ct)
	return nil
}

// StopDelivery stops an ongoing delivery on a group.
func (m *Machine) StopDelivery(group int) error {
	if err := validGroup(group); err != nil {
		return err
	}
	return m.writeRegister(regCommandBase+uint16(group-1), cmdStopDelivery)
}

// StartPurge starts a purge cycle on a group.
func (m *Machine) StartPurge(group int) error {
	if err := validGroup(group); err != nil {
		return err
	}
	return m.writeRegister(regCommandBase+uint16(group-1), cmdStartPurge)
}

// SendWater sends a water delivery command for the given set.
func (m *Machine) SendWater(set int) error {
	return m.writeRegister(regWaterCommand, uint16(set))
}

// SendMAT sends a MAT delivery command for the given set.
func (m *Machine) SendMAT(set int) error {
	return m.writeRegister(regMATCommand, uint16(set))
}

// WaitUntilGroupFree polls until the group has no ongoing delivery or the
// timeout elapses.
func (m *Machine) WaitUntilGroupFree(group int, timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		busy, err := m.GroupBusy(group)
		if err != nil {
			return false, err
		}
		if !busy {
			return true, nil
		}
		time.Sleep(interval)
	}
	return false, nil
}
