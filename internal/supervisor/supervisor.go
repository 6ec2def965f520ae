// Package supervisor implements the per-DUT state machine (§4.6): it owns
// the DUT's UDP telemetry socket, drives the rotating command catalog, and
// escalates through soft-app, soft-OS and hard (power-cycle) reboots when
// the DUT stops producing telemetry in time.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/radhelper/radiation-setup/internal/catalog"
	"github.com/radhelper/radiation-setup/internal/config"
	"github.com/radhelper/radiation-setup/internal/dutlog"
	"github.com/radhelper/radiation-setup/internal/errorcode"
	"github.com/radhelper/radiation-setup/internal/eventparser"
	"github.com/radhelper/radiation-setup/internal/events"
	"github.com/radhelper/radiation-setup/internal/logger"
	"github.com/radhelper/radiation-setup/internal/powerswitch"
	"github.com/radhelper/radiation-setup/internal/remoteshell"
)

// Tunables taken from the original escalation ladder.
const (
	maxSoftAppReboots = 3
	maxSoftOSReboots  = 3
	maxHardReboots    = 6

	softRebootAttempts = 4
	betweenWritesWait  = 1 * time.Second
	postOSRebootWait   = 5 * time.Second
	shortHardRebootRest = 4 * time.Second
	longHardRebootRest  = 1800 * time.Second

	bootPingTimeout = 10 * time.Second
	catalogWindow   = 1 * time.Hour

	telnetPort = 23
)

// ErrInvalidState reports a precondition violation in the DUTLogger
// handoff (§4.6): it is the one escalation-ladder outcome that is fatal
// to the Supervisor rather than just another status code to log and
// retry from.
var ErrInvalidState = errors.New("supervisor: dut logger precondition violated")

// Supervisor is the runtime state machine for exactly one DUT. Construct
// with New and start it with Start; Stop requests a cooperative shutdown
// and waits for it.
type Supervisor struct {
	cfg       config.DUT
	hostPort  string // DUT's telnet-style remote shell endpoint
	outlet    int
	logDir    string

	t    tomb.Tomb
	log  logger.Logger
	conn *net.UDPConn

	shell    remoteshell.Shell
	switcher powerswitch.Switch
	rotator  *catalog.Rotator
	events   *events.Events

	dutLogger dutlog.Logger

	softAppRebootCount int32
	softOSRebootCount  int32
	hardRebootCount    int32
}

// New constructs a Supervisor for cfg, ready to Start. It opens the
// telemetry UDP socket and command catalog eagerly so construction errors
// surface before the goroutine starts, but performs no network I/O
// against the DUT itself.
func New(cfg config.DUT, serverIP string, logStoreDir string) (*Supervisor, error) {
	rotator, err := catalog.NewRotator(cfg.JSONFiles, catalogWindow)
	if err != nil {
		return nil, fmt.Errorf("supervisor %s: %w", cfg.Hostname, err)
	}

	addr := &net.UDPAddr{IP: net.ParseIP(serverIP), Port: cfg.ReceivePort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("supervisor %s: listening on %s: %w", cfg.Hostname, addr, err)
	}

	var sw powerswitch.Switch
	switch cfg.PowerSwitchModel {
	case config.PowerSwitchLindy:
		sw = powerswitch.Lindy{IP: cfg.PowerSwitchIP}
	default:
		sw = powerswitch.Default{IP: cfg.PowerSwitchIP}
	}

	named := logger.Named(cfg.Hostname)
	hostPort := fmt.Sprintf("%s:%d", cfg.IP, telnetPort)

	s := &Supervisor{
		cfg:      cfg,
		hostPort: hostPort,
		outlet:   cfg.PowerSwitchPort,
		logDir:   logStoreDir,
		log:      named,
		conn:     conn,
		shell:    remoteshell.Shell{HostPort: hostPort, Username: cfg.Username, Password: cfg.Password},
		switcher: sw,
		rotator:  rotator,
	}
	s.events = events.New(cfg.Hostname, s, named)
	return s, nil
}

// String renders the Supervisor's identity for logs and status displays.
func (s *Supervisor) String() string {
	return fmt.Sprintf("IP:%s USERNAME:%s HOSTNAME:%s RECPORT:%d", s.cfg.IP, s.cfg.Username, s.cfg.Hostname, s.cfg.ReceivePort)
}

// ConsecutiveSoftReboots satisfies events.ConsecutiveCounts: only the
// soft-app-reboot counter feeds Status derivation, matching §4.5's
// "consecutive_soft_reboots" reading the app-reboot tally alone.
func (s *Supervisor) ConsecutiveSoftReboots() int {
	return int(atomic.LoadInt32(&s.softAppRebootCount))
}

// ConsecutiveHardReboots satisfies events.ConsecutiveCounts.
func (s *Supervisor) ConsecutiveHardReboots() int {
	return int(atomic.LoadInt32(&s.hardRebootCount))
}

// Summary returns the current status snapshot for the StatusAggregator.
func (s *Supervisor) Summary() events.Summary {
	return s.events.Summary()
}

// Start launches the Supervisor's run loop in the background.
func (s *Supervisor) Start() {
	s.t.Go(s.run)
}

// Stop requests a cooperative shutdown and waits for the run loop to
// unwind.
func (s *Supervisor) Stop() error {
	s.t.Kill(nil)
	s.conn.SetReadDeadline(time.Now())
	return s.t.Wait()
}

// Done is closed once the run loop has exited, whether because a stop
// was requested or because it failed on its own. Callers that need to
// tell the two apart check Err() after Done fires.
func (s *Supervisor) Done() <-chan struct{} {
	return s.t.Dead()
}

// Err reports the run loop's exit error. It is nil for a clean exit
// (including a requested Stop) and non-nil when the run loop returned a
// fatal error on its own, such as ErrInvalidState.
func (s *Supervisor) Err() error {
	return s.t.Err()
}

// dying reports whether a stop has been requested.
func (s *Supervisor) dying() bool {
	select {
	case <-s.t.Dying():
		return true
	default:
		return false
	}
}

// sleep waits for d or the stop signal, whichever comes first. It reports
// whether the stop signal fired.
func (s *Supervisor) sleep(d time.Duration) (stopped bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-s.t.Dying():
		return true
	}
}

func (s *Supervisor) run() error {
	defer func() {
		if s.dutLogger != nil {
			if err := s.dutLogger.Finalize(dutlog.NormalEnd); err != nil {
				s.log.Noticef("finalizing DUT log on shutdown: %v", err)
			}
			s.dutLogger = nil
		}
		s.conn.Close()
	}()

	if code := s.switcher.Set(context.Background(), s.outlet, powerswitch.On); code != errorcode.Success {
		s.log.Noticef("initial power-on failed: %s", code)
	}

	if code := s.waitForBoot(); code != errorcode.Success {
		s.log.Noticef("DUT never came up at startup: %s", code)
	}

	if code := s.softAppReboot(nil); code != errorcode.Success {
		s.log.Noticef("initial soft app reboot failed: %s", code)
	}
	s.events.StartBenchmark()

	for {
		if s.dying() {
			return nil
		}

		s.conn.SetReadDeadline(time.Now().Add(time.Duration(s.cfg.MaxTimeoutTime) * time.Second))
		buf := make([]byte, 4096)
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.dying() {
				return nil
			}
			if !isTimeout(err) {
				s.log.Noticef("udp read error: %v", err)
				continue
			}
			keepRunning, ferr := s.handleRunTimeout()
			if ferr != nil {
				return ferr
			}
			if !keepRunning {
				return nil
			}
			continue
		}

		datagram := buf[:n]
		if s.dutLogger != nil {
			if werr := s.dutLogger.Write(datagram); werr != nil {
				s.log.Noticef("writing telemetry to log: %v", werr)
			}
		}

		ev, perr := eventparser.Parse(datagram)
		if perr != nil {
			s.log.Debugf("dropping malformed datagram: %v", perr)
			continue
		}
		s.events.Handle(ev)

		if ev.Kind == eventparser.KindIteration {
			atomic.StoreInt32(&s.softAppRebootCount, 0)
			atomic.StoreInt32(&s.hardRebootCount, 0)
			s.log.Debugf("summary: %+v", s.events.Summary())
		}

		if s.rotator.IsWindowExpired() {
			code := s.softAppReboot(endStatus(dutlog.NormalEnd))
			if code == errorcode.InvalidState {
				return ErrInvalidState
			}
			if code != errorcode.Success {
				s.log.Noticef("command-rotation soft app reboot failed: %s", code)
			}
		}
	}
}

// handleRunTimeout runs the escalation ladder triggered by a telemetry
// read timeout (§4.6): soft app reboot, then soft OS reboot, then hard
// reboot, stopping at the first tier that succeeds. The soft app reboot
// that follows a successful soft OS reboot, or any hard reboot, ends the
// run loop only on InvalidState; its other outcomes are not checked.
func (s *Supervisor) handleRunTimeout() (keepRunning bool, fatal error) {
	s.events.EndRun()
	s.events.SoftReboot()

	code := s.softAppReboot(endStatus(dutlog.SoftAppReboot))
	switch code {
	case errorcode.Success:
		return true, nil
	case errorcode.ThreadEventSet:
		return false, nil
	case errorcode.InvalidState:
		return false, ErrInvalidState
	}

	osCode := s.softOSReboot()
	if osCode == errorcode.Success {
		if code := s.softAppReboot(endStatus(dutlog.SoftOSReboot)); code == errorcode.InvalidState {
			return false, ErrInvalidState
		}
		return true, nil
	}
	if osCode == errorcode.ThreadEventSet {
		return false, nil
	}

	s.events.HardReboot()
	hardCode := s.hardReboot()
	if hardCode == errorcode.ThreadEventSet {
		return false, nil
	}
	if code := s.softAppReboot(endStatus(dutlog.HardReboot)); code == errorcode.InvalidState {
		return false, ErrInvalidState
	}
	return true, nil
}

func endStatus(e dutlog.EndStatus) *dutlog.EndStatus { return &e }

// waitForBoot polls the DUT until it accepts a full login session or the
// configured boot window elapses. A connection actively refused (as
// opposed to generally unreachable) backs off by bootPingTimeout before
// retrying, since it usually means the login daemon isn't up yet (§C).
func (s *Supervisor) waitForBoot() errorcode.Code {
	deadline := time.Now().Add(time.Duration(s.cfg.BootWaitingTime) * time.Second)

	for time.Now().Before(deadline) {
		if s.dying() {
			return errorcode.ThreadEventSet
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ping := remoteshell.Ping(ctx, s.hostPort)
		cancel()

		switch ping {
		case errorcode.Success:
			session, code := s.shell.WithSession(time.Duration(s.cfg.MaxTimeoutTime) * time.Second)
			if code == errorcode.Success {
				session.Close()
				return errorcode.Success
			}
		case errorcode.ConnectionError:
			if s.sleep(bootPingTimeout) {
				return errorcode.ThreadEventSet
			}
			continue
		}

		if s.sleep(1 * time.Second) {
			return errorcode.ThreadEventSet
		}
	}

	return errorcode.HostUnreachable
}

// softAppReboot opens a remote shell session, kills and relaunches the
// current catalog command, and rolls the DUT logger over. previous is the
// EndStatus the outgoing DUTLogger (if any) should be finalized with; it
// must be non-nil exactly when a DUTLogger is already open (§4.6's
// invariant), violating it is a fatal precondition failure.
func (s *Supervisor) softAppReboot(previous *dutlog.EndStatus) errorcode.Code {
	if s.dying() {
		return errorcode.ThreadEventSet
	}
	if (previous == nil) != (s.dutLogger == nil) {
		return errorcode.InvalidState
	}
	if atomic.LoadInt32(&s.softAppRebootCount) >= maxSoftAppReboots {
		return errorcode.MaxAppReboot
	}

	execCmd, killCmd, codeName, header := s.rotator.RunCommands()

	var lastCode errorcode.Code
	for attempt := 0; attempt < softRebootAttempts; attempt++ {
		if s.dying() {
			return errorcode.ThreadEventSet
		}

		session, code := s.shell.WithSession(time.Duration(s.cfg.MaxTimeoutTime) * time.Second)
		switch code {
		case errorcode.Success:
			// fall through to drive the session below.
		case errorcode.RemoteShellEOF:
			// The connection dropped mid-dialog; retryable (§4.6 "EOF on
			// session -> retry"). If every attempt ends this way, report
			// the exhausted-retries outcome below, not EOF itself.
			lastCode = errorcode.RemoteShellConnectionError
			continue
		case errorcode.HostUnreachable, errorcode.ConnectionError:
			// The DUT couldn't be reached at all; return immediately
			// rather than burning the remaining attempts (§4.6).
			return code
		case errorcode.RemoteShellConnectionError:
			// A prompt never matched within the deadline: a real login
			// failure, not a transient drop. Return immediately (§4.6
			// "TelnetLoginError -> return immediately").
			return code
		default:
			return code
		}

		ok := true
		if err := session.WriteLine(killCmd); err != nil {
			ok = false
		}
		session.Drain()
		if s.sleep(betweenWritesWait) {
			session.Close()
			return errorcode.ThreadEventSet
		}
		if ok {
			if err := session.WriteLine(execCmd); err != nil {
				ok = false
			}
		}
		session.Drain()
		if s.sleep(betweenWritesWait) {
			session.Close()
			return errorcode.ThreadEventSet
		}
		session.Close()

		if !ok {
			lastCode = errorcode.RemoteShellConnectionError
			continue
		}

		if s.dutLogger != nil {
			if ferr := s.dutLogger.Finalize(*previous); ferr != nil {
				s.log.Noticef("finalizing DUT log: %v", ferr)
			}
		}
		fresh, ferr := dutlog.New(s.logDir, codeName, header, s.cfg.Hostname)
		if ferr != nil {
			s.log.Noticef("opening DUT log: %v", ferr)
			return errorcode.GeneralError
		}
		s.dutLogger = fresh

		atomic.AddInt32(&s.softAppRebootCount, 1)
		s.events.StartRun()
		return errorcode.Success
	}

	return lastCode
}

// softOSReboot issues a full OS reboot over the remote shell and waits
// for the DUT to come back up.
func (s *Supervisor) softOSReboot() errorcode.Code {
	if s.dying() {
		return errorcode.ThreadEventSet
	}
	if s.cfg.DisableOSSoftReboot {
		return errorcode.DisabledSoftOSReboot
	}
	if atomic.LoadInt32(&s.softOSRebootCount) >= maxSoftOSReboots {
		return errorcode.MaxOSReboot
	}

	session, code := s.shell.WithSession(time.Duration(s.cfg.MaxTimeoutTime) * time.Second)
	if code != errorcode.Success {
		return code
	}
	if err := session.WriteLine([]byte("sudo /sbin/reboot")); err != nil {
		session.Close()
		return errorcode.RemoteShellConnectionError
	}
	session.Drain()
	if s.sleep(betweenWritesWait) {
		session.Close()
		return errorcode.ThreadEventSet
	}
	session.Close()

	if s.sleep(postOSRebootWait) {
		return errorcode.ThreadEventSet
	}

	if code := s.waitForBoot(); code != errorcode.Success {
		return code
	}

	atomic.StoreInt32(&s.softAppRebootCount, 0)
	atomic.AddInt32(&s.softOSRebootCount, 1)
	return errorcode.Success
}

// hardReboot power-cycles the DUT's outlet. Past maxHardReboots
// consecutive attempts it rests for a long cool-down instead of the usual
// short rest, and resets the consecutive counter so the ladder can try
// again (§4.6).
func (s *Supervisor) hardReboot() errorcode.Code {
	if s.dying() {
		return errorcode.ThreadEventSet
	}

	rest := shortHardRebootRest
	if atomic.LoadInt32(&s.hardRebootCount) > maxHardReboots {
		rest = longHardRebootRest
		atomic.StoreInt32(&s.hardRebootCount, 0)
	} else {
		atomic.AddInt32(&s.hardRebootCount, 1)
	}

	ctx, cancel := s.stoppableContext()
	defer cancel()
	_, onCode := powerswitch.Reboot(ctx, s.switcher, s.outlet, rest)
	if onCode == errorcode.ThreadEventSet {
		return errorcode.ThreadEventSet
	}

	if code := s.waitForBoot(); code != errorcode.Success {
		return code
	}

	atomic.StoreInt32(&s.softAppRebootCount, 0)
	atomic.StoreInt32(&s.softOSRebootCount, 0)
	return errorcode.Success
}

// stoppableContext returns a context cancelled when the Supervisor's stop
// signal fires, so a long powerswitch.Reboot rest is itself cancellable.
func (s *Supervisor) stoppableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.t.Dying():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
