package powerswitch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/radhelper/radiation-setup/internal/errorcode"
)

const lindyUserAgent = "radiation-setup-supervisor"

// lindyAuthUser and lindyAuthPassword are the fixed Basic auth credential
// the switch's firmware accepts (§4.1); it is not per-DUT configurable,
// matching the original tooling's hardcoded "snmp"/"1234" login.
const (
	lindyAuthUser     = "snmp"
	lindyAuthPassword = "1234"
)

// Lindy implements Switch for Lindy-branded network power switches: a
// POST against "{on,off}s.cgi" carrying a 24-character LED bitmask query
// parameter selects the outlet, Basic auth authenticates, and a fixed
// Referer/User-Agent pair matches what the switch's own web UI sends
// (§4.1).
type Lindy struct {
	IP string
}

func (l Lindy) Set(ctx context.Context, outlet int, state OutletState) errorcode.Code {
	path := "offs.cgi"
	if state == On {
		path = "ons.cgi"
	}

	mask := lindyMask(outlet)
	url := fmt.Sprintf("http://%s/%s?led=%s", l.IP, path, mask)

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return errorcode.GeneralError
	}
	req.Header.Set("User-Agent", lindyUserAgent)
	req.Header.Set("Referer", fmt.Sprintf("http://%s/outlet.htm", l.IP))
	req.SetBasicAuth(lindyAuthUser, lindyAuthPassword)

	return doRequest(ctx, req)
}

// lindyMask builds the 24-character LED bitmask with a single '1' at
// position outlet-1 and '0' everywhere else.
func lindyMask(outlet int) string {
	var b strings.Builder
	b.Grow(24)
	for i := 0; i < 24; i++ {
		if i == outlet-1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
