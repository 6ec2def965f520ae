package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/radhelper/radiation-setup/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadServerValid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "server.yaml", `
server_log_file: /var/log/radiation-setup.log
server_log_store_dir: /var/log/radiation-setup
server_ip: 10.0.0.1
machines:
  - cfg_file: dut0.yaml
    enabled: true
  - cfg_file: dut1.yaml
    enabled: false
`)
	cfg, err := config.LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if len(cfg.Machines) != 2 || !cfg.Machines[0].Enabled || cfg.Machines[1].Enabled {
		t.Fatalf("Machines = %+v", cfg.Machines)
	}
}

func TestLoadServerMissingFieldFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "server.yaml", `
server_log_file: /var/log/radiation-setup.log
server_ip: 10.0.0.1
machines:
  - cfg_file: dut0.yaml
    enabled: true
`)
	if _, err := config.LoadServer(path); err == nil {
		t.Fatal("expected error for missing server_log_store_dir")
	}
}

func TestLoadServerUnknownFieldFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "server.yaml", `
server_log_file: x
server_log_store_dir: y
server_ip: z
machines: []
typo_field: true
`)
	if _, err := config.LoadServer(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadDUTValid(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "catalog.json", `[]`)
	_ = catalogPath

	path := writeFile(t, dir, "dut0.yaml", `
ip: 192.168.1.10
hostname: dut0
username: root
password: toor
power_switch_ip: 192.168.1.20
power_switch_port: 80
power_switch_model: lindy
boot_waiting_time: 120
max_timeout_time: 30
receive_port: 9000
json_files:
  - catalog.json
`)
	cfg, err := config.LoadDUT(path)
	if err != nil {
		t.Fatalf("LoadDUT: %v", err)
	}
	if cfg.PowerSwitchModel != config.PowerSwitchLindy {
		t.Fatalf("PowerSwitchModel = %q, want lindy", cfg.PowerSwitchModel)
	}
}

func TestLoadDUTResolvesRelativeJSONFilesAgainstConfigDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "catalog.json", `[]`)
	path := writeFile(t, dir, "dut0.yaml", `
ip: 192.168.1.10
hostname: dut0
username: root
password: toor
power_switch_ip: 192.168.1.20
power_switch_model: default
boot_waiting_time: 120
max_timeout_time: 30
receive_port: 9000
json_files:
  - catalog.json
`)
	cfg, err := config.LoadDUT(path)
	if err != nil {
		t.Fatalf("LoadDUT: %v", err)
	}
	want := filepath.Join(dir, "catalog.json")
	if len(cfg.JSONFiles) != 1 || cfg.JSONFiles[0] != want {
		t.Fatalf("JSONFiles = %v, want [%s] (resolved against the config's own directory, not the process cwd)", cfg.JSONFiles, want)
	}
}

func TestLoadDUTBadSwitchModelFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "catalog.json", `[]`)
	path := writeFile(t, dir, "dut0.yaml", `
ip: 192.168.1.10
hostname: dut0
username: root
power_switch_ip: 192.168.1.20
power_switch_model: nonsense
boot_waiting_time: 120
max_timeout_time: 30
receive_port: 9000
json_files:
  - catalog.json
`)
	if _, err := config.LoadDUT(path); err == nil {
		t.Fatal("expected error for invalid power_switch_model")
	}
}

func TestLoadDUTMissingCatalogFileFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dut0.yaml", `
ip: 192.168.1.10
hostname: dut0
username: root
power_switch_ip: 192.168.1.20
power_switch_model: default
boot_waiting_time: 120
max_timeout_time: 30
receive_port: 9000
json_files:
  - does-not-exist.json
`)
	if _, err := config.LoadDUT(path); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}
