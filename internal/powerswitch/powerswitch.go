// Package powerswitch implements the PowerSwitch capability (§4.1): set a
// numbered outlet ON/OFF against a specific networked switch model, and
// the derived power-cycle reboot operation.
package powerswitch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/radhelper/radiation-setup/internal/errorcode"
	"github.com/radhelper/radiation-setup/internal/logger"
)

// OutletState is the commanded state of an outlet.
type OutletState int

const (
	Off OutletState = iota
	On
)

func (s OutletState) String() string {
	if s == On {
		return "ON"
	}
	return "OFF"
}

// requestTimeout bounds every outgoing HTTP request to a switch; the
// switches on this network are LAN-local embedded devices, so a generous
// timeout still keeps a stuck switch from blocking a Supervisor forever.
const requestTimeout = 10 * time.Second

// Switch is the PowerSwitch capability: set an outlet's power state.
type Switch interface {
	Set(ctx context.Context, outlet int, state OutletState) errorcode.Code
}

// Reboot powers outlet off, waits restSeconds (cancellable via ctx), then
// powers it back on, returning the (off, on) status pair. Side effect:
// physical power interruption. No retries are attempted here; failures
// are propagated to the caller for escalation-ladder handling.
func Reboot(ctx context.Context, s Switch, outlet int, restSeconds time.Duration) (off, on errorcode.Code) {
	off = s.Set(ctx, outlet, Off)

	timer := time.NewTimer(restSeconds)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return off, errorcode.ThreadEventSet
	}

	on = s.Set(ctx, outlet, On)
	return off, on
}

// classifyHTTPError maps a transport-level HTTP error to the errorcode
// taxonomy (§4.1/§7): context cancellation is reported distinctly from a
// timeout, a refused/unreachable connection is distinct from a generic
// failure, which falls back to GeneralError.
func classifyHTTPError(ctx context.Context, err error) errorcode.Code {
	if err == nil {
		return errorcode.Success
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errorcode.ThreadEventSet
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errorcode.TimeoutError
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) {
		return errorcode.ConnectionError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errorcode.ConnectionError
	}
	return errorcode.GeneralError
}

func classifyStatus(code int) errorcode.Code {
	if code >= 200 && code < 300 {
		return errorcode.Success
	}
	return errorcode.HTTPError
}

func doRequest(ctx context.Context, req *http.Request) errorcode.Code {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req = req.WithContext(ctx)

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		code := classifyHTTPError(ctx, err)
		logger.Debugf("powerswitch: request to %s failed: %v (%s)", req.URL, err, code)
		return code
	}
	defer resp.Body.Close()

	code := classifyStatus(resp.StatusCode)
	if code != errorcode.Success {
		logger.Debugf("powerswitch: request to %s returned status %d", req.URL, resp.StatusCode)
	}
	return code
}
