package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestDeviceFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:   "den._fhwise._tcp.local.",
		AddrV4: net.IPv4(192, 0, 2, 10),
		Port:   8080,
	}

	dev, ok := deviceFromEntry(entry)
	if !ok {
		t.Fatal("expected entry to produce a device")
	}
	if dev.Name != "den" {
		t.Errorf("expected name den, got %q", dev.Name)
	}
	if dev.Host != "192.0.2.10" {
		t.Errorf("expected host 192.0.2.10, got %q", dev.Host)
	}
	if dev.Port != 8080 {
		t.Errorf("expected port 8080, got %d", dev.Port)
	}
}

func TestDeviceFromEntryPrefersV4(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:   "den._fhwise._tcp.local.",
		AddrV4: net.IPv4(192, 0, 2, 11),
		AddrV6: net.ParseIP("fe80::1"),
		Port:   8080,
	}

	dev, ok := deviceFromEntry(entry)
	if !ok {
		t.Fatal("expected entry to produce a device")
	}
	if dev.Host != "192.0.2.11" {
		t.Errorf("expected the v4 address, got %q", dev.Host)
	}
}

func TestDeviceFromEntryHostFallback(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name: "den._fhwise._tcp.local.",
		Host: "den.local.",
		Port: 8080,
	}

	dev, ok := deviceFromEntry(entry)
	if !ok {
		t.Fatal("expected entry to produce a device")
	}
	if dev.Host != "den.local" {
		t.Errorf("expected trimmed host name, got %q", dev.Host)
	}
}

func TestDeviceFromEntryRejectsIncomplete(t *testing.T) {
	if _, ok := deviceFromEntry(nil); ok {
		t.Error("nil entry should be rejected")
	}
	if _, ok := deviceFromEntry(&mdns.ServiceEntry{Name: "x", Host: "x.local.", Port: 0}); ok {
		t.Error("entry without a port should be rejected")
	}
	if _, ok := deviceFromEntry(&mdns.ServiceEntry{Name: "x", Port: 8080}); ok {
		t.Error("entry without an address should be rejected")
	}
}
