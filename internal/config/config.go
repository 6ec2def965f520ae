// Package config loads and validates the server-level and per-DUT YAML
// configuration described in §6 ("External interfaces"). Validation
// happens at load time, never inside a running Supervisor.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FormatError is returned for a config file that failed to parse or
// validate.
type FormatError struct {
	Path    string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Path, e.Message)
}

// MachineEntry references one DUT's own config file and whether it is
// currently enabled.
type MachineEntry struct {
	CfgFile string `yaml:"cfg_file"`
	Enabled bool   `yaml:"enabled"`
}

// Server is the server-wide configuration: where to log, where to store
// per-DUT telemetry, the server's own listening address, and the set of
// DUTs to supervise.
type Server struct {
	LogFile      string         `yaml:"server_log_file"`
	LogStoreDir  string         `yaml:"server_log_store_dir"`
	IP           string         `yaml:"server_ip"`
	Machines     []MachineEntry `yaml:"machines"`
}

// PowerSwitchModel is the closed set of supported switch dialects.
type PowerSwitchModel string

const (
	PowerSwitchDefault PowerSwitchModel = "default"
	PowerSwitchLindy   PowerSwitchModel = "lindy"
)

// DUT is one supervised device's configuration.
type DUT struct {
	IP                 string           `yaml:"ip"`
	Hostname           string           `yaml:"hostname"`
	Username           string           `yaml:"username"`
	Password           string           `yaml:"password"`
	PowerSwitchIP string `yaml:"power_switch_ip"`
	// PowerSwitchPort is the switch's own numbered outlet this DUT is
	// plugged into, not a TCP port.
	PowerSwitchPort  int              `yaml:"power_switch_port"`
	PowerSwitchModel PowerSwitchModel `yaml:"power_switch_model"`
	BootWaitingTime    int              `yaml:"boot_waiting_time"`
	MaxTimeoutTime     int              `yaml:"max_timeout_time"`
	ReceivePort        int              `yaml:"receive_port"`
	JSONFiles          []string         `yaml:"json_files"`
	DisableOSSoftReboot bool            `yaml:"disable_os_soft_reboot"`
}

// LoadServer reads and validates the server-wide YAML config at path.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading server config %q: %w", path, err)
	}

	var cfg Server
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &FormatError{Path: path, Message: err.Error()}
	}

	if cfg.LogFile == "" {
		return nil, &FormatError{Path: path, Message: "server_log_file is required"}
	}
	if cfg.LogStoreDir == "" {
		return nil, &FormatError{Path: path, Message: "server_log_store_dir is required"}
	}
	if cfg.IP == "" {
		return nil, &FormatError{Path: path, Message: "server_ip is required"}
	}
	if len(cfg.Machines) == 0 {
		return nil, &FormatError{Path: path, Message: "machines must contain at least one entry"}
	}
	for i, m := range cfg.Machines {
		if m.CfgFile == "" {
			return nil, &FormatError{Path: path, Message: fmt.Sprintf("machines[%d].cfg_file is required", i)}
		}
	}

	return &cfg, nil
}

// LoadDUT reads and validates a per-DUT YAML config at path.
func LoadDUT(path string) (*DUT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading DUT config %q: %w", path, err)
	}

	var cfg DUT
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &FormatError{Path: path, Message: err.Error()}
	}

	if err := cfg.validate(path); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *DUT) validate(path string) error {
	required := map[string]string{
		"ip":               cfg.IP,
		"hostname":         cfg.Hostname,
		"username":         cfg.Username,
		"power_switch_ip":  cfg.PowerSwitchIP,
	}
	for field, value := range required {
		if value == "" {
			return &FormatError{Path: path, Message: fmt.Sprintf("%s is required", field)}
		}
	}

	switch cfg.PowerSwitchModel {
	case PowerSwitchDefault, PowerSwitchLindy:
	default:
		return &FormatError{Path: path, Message: fmt.Sprintf(
			"power_switch_model %q must be one of {default, lindy}", cfg.PowerSwitchModel)}
	}

	if cfg.BootWaitingTime <= 0 {
		return &FormatError{Path: path, Message: "boot_waiting_time must be positive"}
	}
	if cfg.MaxTimeoutTime <= 0 {
		return &FormatError{Path: path, Message: "max_timeout_time must be positive"}
	}
	if cfg.ReceivePort <= 0 {
		return &FormatError{Path: path, Message: "receive_port must be positive"}
	}
	if len(cfg.JSONFiles) == 0 {
		return &FormatError{Path: path, Message: "json_files must contain at least one entry"}
	}

	baseDir := filepath.Dir(path)
	for i, f := range cfg.JSONFiles {
		resolved := f
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, f)
		}
		if _, err := os.Stat(resolved); err != nil {
			return &FormatError{Path: path, Message: fmt.Sprintf("json_files entry %q does not exist: %v", f, err)}
		}
		// Store the resolved path back so later readers (catalog.NewRotator)
		// don't re-resolve a relative entry against the process's cwd
		// instead of this config file's own directory.
		cfg.JSONFiles[i] = resolved
	}

	return nil
}
