package catalog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/radhelper/radiation-setup/internal/catalog"
)

func writeCatalog(t *testing.T, dir, name string, cmds []map[string]string) string {
	t.Helper()
	data, err := json.Marshal(cmds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestEmptyCatalogFails(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, "empty.json", nil)
	if _, err := catalog.NewRotator([]string{path}, time.Hour); err == nil {
		t.Fatal("expected an error for an empty catalog")
	}
}

func TestRunCommandsNormalizesExecAndKill(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, "a.json", []map[string]string{
		{"exec": "nohup ./bench --iters=10 &\r\n", "kill": "nohup pkill bench", "codename": "A", "header": "Bench A"},
	})
	r, err := catalog.NewRotator([]string{path}, time.Hour)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	exec, kill, name, header := r.RunCommands()
	const wantExec = "nohup ./bench --iters=10 &\r\n"
	if string(exec) != wantExec {
		t.Fatalf("exec = %q, want %q", exec, wantExec)
	}
	const wantKill = "pkill bench \r\n"
	if string(kill) != wantKill {
		t.Fatalf("kill = %q, want %q", kill, wantKill)
	}
	if name != "A" || header != "Bench A" {
		t.Fatalf("name/header = %q/%q, want A/Bench A", name, header)
	}
}

func TestRotationCyclesInDeclarationOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, "abc.json", []map[string]string{
		{"exec": "a.bin", "kill": "kill-a", "codename": "A", "header": "hA"},
		{"exec": "b.bin", "kill": "kill-b", "codename": "B", "header": "hB"},
		{"exec": "c.bin", "kill": "kill-c", "codename": "C", "header": "hC"},
	})
	window := 10 * time.Millisecond
	r, err := catalog.NewRotator([]string{path}, window)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}

	var seen []string
	for i := 0; i < 7; i++ {
		_, _, name, _ := r.RunCommands()
		seen = append(seen, name)
		time.Sleep(window + 2*time.Millisecond)
	}

	want := []string{"A", "B", "C", "A", "B", "C", "A"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("rotation[%d] = %q, want %q (full: %v)", i, seen[i], want[i], seen)
		}
	}
}

func TestWithinWindowReturnsSameCode(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, "ab.json", []map[string]string{
		{"exec": "a.bin", "kill": "kill-a", "codename": "A", "header": "hA"},
		{"exec": "b.bin", "kill": "kill-b", "codename": "B", "header": "hB"},
	})
	r, err := catalog.NewRotator([]string{path}, time.Hour)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	_, _, first, _ := r.RunCommands()
	for i := 0; i < 3; i++ {
		_, _, name, _ := r.RunCommands()
		if name != first {
			t.Fatalf("code_name changed within window: %q != %q", name, first)
		}
	}
}

func TestMultipleCatalogFilesConcatenateInArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	p1 := writeCatalog(t, dir, "1.json", []map[string]string{
		{"exec": "a.bin", "kill": "kill-a", "codename": "A", "header": "hA"},
	})
	p2 := writeCatalog(t, dir, "2.json", []map[string]string{
		{"exec": "b.bin", "kill": "kill-b", "codename": "B", "header": "hB"},
	})
	r, err := catalog.NewRotator([]string{p1, p2}, time.Millisecond)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	_, _, first, _ := r.RunCommands()
	if first != "A" {
		t.Fatalf("first command = %q, want A", first)
	}
	time.Sleep(2 * time.Millisecond)
	_, _, second, _ := r.RunCommands()
	if second != "B" {
		t.Fatalf("second command = %q, want B", second)
	}
}
