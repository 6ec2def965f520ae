package powerswitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/radhelper/radiation-setup/internal/errorcode"
)

// Default implements Switch for the generic iocontrol.tgi-based switch
// family: a form POST to "/tgi/iocontrol.tgi" names the outlet
// "P6{outlet-1}" and carries "On"/"Off" as its value (§4.1). The outlet
// number is the switch's own numbered outlet/port, not a TCP port: the
// request always targets the switch's default HTTP port.
type Default struct {
	IP string
}

func (d Default) Set(ctx context.Context, outlet int, state OutletState) errorcode.Code {
	value := "Off"
	if state == On {
		value = "On"
	}

	form := url.Values{}
	form.Set(fmt.Sprintf("P6%d", outlet-1), value)

	endpoint := fmt.Sprintf("http://%s/tgi/iocontrol.tgi", d.IP)
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errorcode.GeneralError
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return doRequest(ctx, req)
}
