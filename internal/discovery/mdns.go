// Package discovery browses mDNS for media devices so they can be
// added without static configuration.
package discovery

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service fhwise devices announce.
const ServiceType = "_fhwise._tcp"

// Device is one discovered device.
type Device struct {
	Name string
	Host string
	Port int
}

// Browser repeats an mDNS query on an interval and reports devices on
// a channel.
type Browser struct {
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	devices  chan Device
}

// NewBrowser creates a browser. Intervals of zero or less fall back to
// one minute.
func NewBrowser(interval time.Duration) *Browser {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Browser{
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		devices:  make(chan Device, 8),
	}
}

// Devices returns the channel discovered devices arrive on.
func (b *Browser) Devices() <-chan Device {
	return b.devices
}

// Start launches the browse loop.
func (b *Browser) Start() {
	go b.browseLoop()
}

// Stop ends the browse loop.
func (b *Browser) Stop() {
	b.cancel()
}

func (b *Browser) browseLoop() {
	for {
		b.browseOnce()
		select {
		case <-b.ctx.Done():
			return
		case <-time.After(b.interval):
		}
	}
}

func (b *Browser) browseOnce() {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			dev, ok := deviceFromEntry(entry)
			if !ok {
				continue
			}
			select {
			case b.devices <- dev:
				log.Printf("Discovery: found %s at %s:%d", dev.Name, dev.Host, dev.Port)
			default:
				// Consumer backlogged; the next query pass sees the
				// device again.
			}
		}
	}()

	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: 3 * time.Second,
		Entries: entries,
	}
	if err := mdns.Query(params); err != nil {
		log.Printf("Discovery: query failed: %v", err)
	}
	close(entries)
	<-done
}

func deviceFromEntry(entry *mdns.ServiceEntry) (Device, bool) {
	if entry == nil || entry.Port == 0 {
		return Device{}, false
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	case entry.Host != "":
		host = strings.TrimSuffix(entry.Host, ".")
	default:
		return Device{}, false
	}

	name := strings.TrimSuffix(entry.Name, "."+ServiceType+".local.")
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		name = host
	}
	return Device{Name: name, Host: host, Port: entry.Port}, true
}
