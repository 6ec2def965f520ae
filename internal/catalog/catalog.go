// Package catalog implements the rotating benchmark-command catalog
// (§4.3 of the specification): it reads one or more JSON command files,
// concatenates them in declaration order, and cycles through them
// indefinitely, bounded by a per-command execution window.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/radhelper/radiation-setup/internal/errorcode"
)

// Command is one entry of a benchmark catalog: the shell strings used to
// launch and kill the workload, its human-readable identity, and the
// timestamp it became the current command.
type Command struct {
	Exec     string `json:"exec"`
	Kill     string `json:"kill"`
	CodeName string `json:"codename"`
	Header   string `json:"header"`

	startTimestamp time.Time
}

// catalogFile is the on-disk shape of one catalog JSON file: an array of
// command records.
type catalogFile []Command

// Rotator produces the currently-selected benchmark Command and rotates to
// the next one once the configured window elapses. Rotation is cyclic and
// indefinite: once the queue empties it is refilled from the full,
// declaration-ordered sequence.
//
// A Rotator is safe for concurrent use; the Supervisor is its only caller,
// but construction happens once at startup while later calls happen from
// the Supervisor's own goroutine, so the lock mostly protects against
// StatusAggregator-style inspection being added later.
type Rotator struct {
	mu sync.Mutex

	sequence []Command // full declaration-ordered sequence, never mutated after construction
	queue    []Command // FIFO cursor drained from the front; refilled from sequence when empty
	current  Command
	window   time.Duration
}

// NewRotator reads and concatenates the given JSON catalog files, in
// argument order, and returns a Rotator whose current Command is the first
// entry. It fails with errorcode.EmptyCatalog if the combined sequence is
// empty.
func NewRotator(jsonFiles []string, window time.Duration) (*Rotator, error) {
	var sequence []Command
	for _, path := range jsonFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read command catalog %q: %w", path, err)
		}
		var file catalogFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("cannot parse command catalog %q: %w", path, err)
		}
		sequence = append(sequence, file...)
	}
	if len(sequence) == 0 {
		return nil, fmt.Errorf("command catalog is empty: %w", emptyCatalogError{})
	}

	r := &Rotator{
		sequence: sequence,
		window:   window,
	}
	r.refillLocked()
	r.current = r.popLocked()
	r.current.startTimestamp = time.Now()
	return r, nil
}

// emptyCatalogError lets callers test for errorcode.EmptyCatalog via
// errors.As without this package depending on errorcode for its error
// values (construction failures are plain errors, see SPEC_FULL.md A.2).
type emptyCatalogError struct{}

func (emptyCatalogError) Error() string { return errorcode.EmptyCatalog.String() }

func (r *Rotator) refillLocked() {
	if len(r.queue) == 0 {
		r.queue = append(r.queue, r.sequence...)
	}
}

func (r *Rotator) popLocked() Command {
	r.refillLocked()
	cmd := r.queue[0]
	r.queue = r.queue[1:]
	return cmd
}

// Current returns the currently-selected Command without advancing
// rotation.
func (r *Rotator) Current() Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// IsWindowExpired reports whether the current Command has occupied its
// execution window for longer than allowed.
func (r *Rotator) IsWindowExpired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isWindowExpiredLocked()
}

func (r *Rotator) isWindowExpiredLocked() bool {
	return time.Since(r.current.startTimestamp) > r.window
}

// RunCommands returns the normalized exec/kill byte strings plus the
// current command's identity, advancing rotation first if the window has
// expired. See §4.3 for the exact normalization rules.
func (r *Rotator) RunCommands() (cmdExec, cmdKill []byte, codeName, header string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isWindowExpiredLocked() {
		r.current = r.popLocked()
		r.current.startTimestamp = time.Now()
	}

	exec := stripAll(r.current.Exec, "nohup", "&\r\n", "&\n", "&")
	kill := stripAll(r.current.Kill, "nohup")

	execLine := "nohup " + exec + " &\r\n"
	killLine := kill + " \r\n"

	return []byte(execLine), []byte(killLine), r.current.CodeName, r.current.Header
}

// stripAll trims leading/trailing whitespace, then repeatedly removes any
// of the given substrings from the start or end of s until none remain,
// so the detached-process prefix and CRLF terminator are enforced exactly
// once even if the catalog entry already carries them (§4.3 rationale).
func stripAll(s string, cuts ...string) string {
	for {
		trimmed := strings.TrimSpace(s)
		changed := trimmed != s
		s = trimmed
		for _, cut := range cuts {
			if strings.HasPrefix(s, cut) {
				s = strings.TrimPrefix(s, cut)
				changed = true
			}
			if strings.HasSuffix(s, cut) {
				s = strings.TrimSuffix(s, cut)
				changed = true
			}
		}
		if !changed {
			return s
		}
	}
}
