// Package discovery advertises the relay on the local network over mDNS so
// clients on the same LAN can find it without configuration.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_sketchroom._tcp"

// Advertise announces the relay listening on port until the returned server
// is shut down.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}

	service, err := newService(host, port, nil)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	return server, nil
}

func newService(instance string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	info := []string{"sketchroom", "path=/ws"}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", instance+".", port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	return service, nil
}

// Browse returns the relay addresses ("ip:port") answering within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- mdns.QueryContext(ctx, params)
		close(entries)
	}()

	var addrs []string
	for e := range entries {
		if e.AddrV4 == nil || e.Port == 0 {
			continue
		}
		addrs = append(addrs, net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)))
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("mdns query: %w", err)
	}
	return addrs, nil
}
