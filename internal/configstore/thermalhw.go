// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/safchain/ethtool"

	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/tcl"
)

// SysfsThermalFactory builds tcl capability implementations backed by
// /sys/class/thermal sensors, a PWM fan sysfs node, chainmask control
// through `iw phy <name> set antenna`, a GPIO-backed LED, and a real reboot. Each ThermalTable.Sources
// entry is resolved as either a raw sysfs path (anything starting with
// "/sys") or a radio interface name, read through ethtool.
type SysfsThermalFactory struct {
	// FanSysfsPath is the PWM control file (e.g.
	// "/sys/class/hwmon/hwmon0/pwm1"), written as a 0-255 duty cycle.
	FanSysfsPath string
	// FanRPMSysfsPath is the fan tachometer input file.
	FanRPMSysfsPath string
	// LEDSysfsPath is an LED trigger/brightness sysfs node, or empty to
	// disable LED signaling.
	LEDSysfsPath string
}

func (f *SysfsThermalFactory) BuildSources(table config.ThermalTable) ([]tcl.TempSource, error) {
	sources := make([]tcl.TempSource, 0, len(table.Sources))
	for _, name := range table.Sources {
		if strings.HasPrefix(name, "/sys") {
			sources = append(sources, &sysfsTempSource{name: name, path: name})
			continue
		}
		sources = append(sources, &radioTempSource{ifname: name})
	}
	return sources, nil
}

func (f *SysfsThermalFactory) BuildFan(table config.ThermalTable) (tcl.FanController, error) {
	if f.FanSysfsPath == "" {
		return nil, fmt.Errorf("configstore: thermal_table %s: no fan sysfs path configured", table.Name)
	}
	return &sysfsFan{pwmPath: f.FanSysfsPath, rpmPath: f.FanRPMSysfsPath}, nil
}

func (f *SysfsThermalFactory) BuildRadio(table config.ThermalTable) (tcl.RadioController, error) {
	return &ethtoolRadio{ifnames: table.Sources}, nil
}

func (f *SysfsThermalFactory) BuildLED(table config.ThermalTable) (tcl.LEDController, error) {
	return &sysfsLED{path: f.LEDSysfsPath}, nil
}

func (f *SysfsThermalFactory) BuildRebooter(table config.ThermalTable) (tcl.Rebooter, error) {
	return &execRebooter{}, nil
}

type sysfsTempSource struct {
	name string
	path string
}

func (s *sysfsTempSource) Name() string  { return s.name }
func (s *sysfsTempSource) Enabled() bool { return true }
func (s *sysfsTempSource) ReadTemperature() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, err
	}
	milliC, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return milliC / 1000, nil
}

// radioTempSource reads a wireless driver's reported temperature via
// ethtool's driver statistics ("temp", a driver-specific counter), since
// radio thermal sensors are not exposed under /sys/class/thermal on most
// drivers. Uses the ethtool ioctl directly rather than shelling out to
// the ethtool(8) binary.
type radioTempSource struct {
	ifname string
}

func (s *radioTempSource) Name() string  { return s.ifname }
func (s *radioTempSource) Enabled() bool { return true }
func (s *radioTempSource) ReadTemperature() (int, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return 0, err
	}
	defer e.Close()

	stats, err := e.Stats(s.ifname)
	if err != nil {
		return 0, err
	}
	if temp, ok := stats["temp"]; ok {
		return int(temp), nil
	}
	return 0, fmt.Errorf("configstore: no temp stat in ethtool stats for %s", s.ifname)
}

type sysfsFan struct {
	pwmPath string
	rpmPath string
}

func (f *sysfsFan) GetFanRPM() (int, error) {
	if f.rpmPath == "" {
		return 0, fmt.Errorf("configstore: no fan rpm sysfs path configured")
	}
	data, err := os.ReadFile(f.rpmPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (f *sysfsFan) SetFanRPM(rpm int) error {
	// Fan sysfs nodes take a 0-255 PWM duty cycle, not an RPM value
	// directly; approximate linearly against a nominal 3000 RPM max.
	const maxRPM = 3000
	duty := rpm * 255 / maxRPM
	if duty < 0 {
		duty = 0
	}
	if duty > 255 {
		duty = 255
	}
	return os.WriteFile(f.pwmPath, []byte(strconv.Itoa(duty)), 0644)
}

type ethtoolRadio struct {
	ifnames []string
}

func (r *ethtoolRadio) SetTxChainmask(srcIdx int, mask int) error {
	if srcIdx < 0 || srcIdx >= len(r.ifnames) {
		return fmt.Errorf("configstore: tx chainmask source index %d out of range", srcIdx)
	}
	return exec.Command("iw", "phy", r.ifnames[srcIdx], "set", "antenna", strconv.Itoa(mask), strconv.Itoa(mask)).Run()
}

type sysfsLED struct {
	path string
}

func (l *sysfsLED) SetHWError(asserted bool) error {
	return l.write(asserted)
}

func (l *sysfsLED) SetThermal(asserted bool) error {
	return l.write(asserted)
}

func (l *sysfsLED) write(asserted bool) error {
	if l.path == "" {
		return nil
	}
	val := "0"
	if asserted {
		val = "1"
	}
	return os.WriteFile(l.path, []byte(val), 0644)
}

type execRebooter struct{}

func (r *execRebooter) Reboot(reason string) error {
	return exec.Command("reboot").Run()
}
