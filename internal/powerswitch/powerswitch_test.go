package powerswitch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radhelper/radiation-setup/internal/errorcode"
	"github.com/radhelper/radiation-setup/internal/powerswitch"
)

func TestLindySetSendsCorrectMaskAndAuth(t *testing.T) {
	var gotPath, gotMask, gotAuthUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMask = r.URL.Query().Get("led")
		user, _, _ := r.BasicAuth()
		gotAuthUser = user
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sw := powerswitch.Lindy{IP: host}
	code := sw.Set(context.Background(), 3, powerswitch.On)

	if code != errorcode.Success {
		t.Fatalf("Set() = %v, want Success", code)
	}
	if gotPath != "/ons.cgi" {
		t.Fatalf("path = %q, want /ons.cgi", gotPath)
	}
	wantMask := "001000000000000000000000"
	if gotMask != wantMask {
		t.Fatalf("mask = %q, want %q", gotMask, wantMask)
	}
	if gotAuthUser != "snmp" {
		t.Fatalf("auth user = %q, want fixed snmp credential", gotAuthUser)
	}
}

func TestLindyOffUsesOffsEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sw := powerswitch.Lindy{IP: host}
	sw.Set(context.Background(), 1, powerswitch.Off)
	if gotPath != "/offs.cgi" {
		t.Fatalf("path = %q, want /offs.cgi", gotPath)
	}
}

func TestLindyNon2xxIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sw := powerswitch.Lindy{IP: host}
	code := sw.Set(context.Background(), 1, powerswitch.On)
	if code != errorcode.HTTPError {
		t.Fatalf("Set() = %v, want HTTPError", code)
	}
}

func TestDefaultSetEncodesOutletAndValue(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tgi/iocontrol.tgi" {
			t.Errorf("path = %q, want /tgi/iocontrol.tgi", r.URL.Path)
		}
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sw := powerswitch.Default{IP: host}
	code := sw.Set(context.Background(), 5, powerswitch.On)

	if code != errorcode.Success {
		t.Fatalf("Set() = %v, want Success", code)
	}
	if gotBody != "P64=On" {
		t.Fatalf("body = %q, want P64=On", gotBody)
	}
}

func TestConnectionRefusedIsClassified(t *testing.T) {
	sw := powerswitch.Default{IP: "127.0.0.1:1"}
	code := sw.Set(context.Background(), 1, powerswitch.On)
	if code == errorcode.Success {
		t.Fatal("Set() against a closed port should not succeed")
	}
}

func TestRebootReturnsOffThenOnStatus(t *testing.T) {
	var states []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "ons") {
			states = append(states, "on")
		} else {
			states = append(states, "off")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sw := powerswitch.Lindy{IP: host}
	off, on := powerswitch.Reboot(context.Background(), sw, 1, 10*time.Millisecond)

	if off != errorcode.Success || on != errorcode.Success {
		t.Fatalf("Reboot() = (%v, %v), want (Success, Success)", off, on)
	}
	if len(states) != 2 || states[0] != "off" || states[1] != "on" {
		t.Fatalf("call order = %v, want [off on]", states)
	}
}

func TestRebootCancelledDuringRestReturnsThreadEventSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sw := powerswitch.Lindy{IP: host}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, on := powerswitch.Reboot(ctx, sw, 1, time.Hour)
	if on != errorcode.ThreadEventSet {
		t.Fatalf("on status = %v, want ThreadEventSet", on)
	}
}
