package net

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"powledger/core"
)

const (
	lanService = "_ledgerd._tcp"
	lanDomain  = "local."
	lanIPKey   = "ip="
)

// LAN advertises this node on the local network over zeroconf.
type LAN struct {
	server *zeroconf.Server
}

// AdvertiseLAN registers self as a _ledgerd._tcp service. The api address
// goes in a TXT record since nodes often listen on loopback.
func AdvertiseLAN(self core.Peer) (*LAN, error) {
	instance := fmt.Sprintf("ledgerd-%d", self.Port)
	server, err := zeroconf.Register(instance, lanService, lanDomain, self.Port, []string{lanIPKey + self.IP}, nil)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	log.Infof("[LAN] advertising %s as %s", self, instance)
	return &LAN{server: server}, nil
}

// Close withdraws the advertisement.
func (l *LAN) Close() {
	l.server.Shutdown()
}

// BrowseLAN collects the nodes advertised on the local network for up to wait.
func BrowseLAN(ctx context.Context, wait time.Duration) ([]core.Peer, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("zeroconf resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, lanService, lanDomain, entries); err != nil {
		return nil, fmt.Errorf("zeroconf browse: %w", err)
	}

	var peers []core.Peer
	seen := make(map[core.Peer]bool)
	for {
		select {
		case <-ctx.Done():
			log.Infof("[LAN] found %d nodes", len(peers))
			return peers, nil
		case e, ok := <-entries:
			if !ok {
				return peers, nil
			}
			p, ok := peerFromEntry(e)
			if !ok || seen[p] {
				continue
			}
			seen[p] = true
			peers = append(peers, p)
		}
	}
}

func peerFromEntry(e *zeroconf.ServiceEntry) (core.Peer, bool) {
	if e == nil {
		return core.Peer{}, false
	}
	p := core.Peer{Port: e.Port}
	for _, txt := range e.Text {
		if strings.HasPrefix(txt, lanIPKey) {
			p.IP = strings.TrimPrefix(txt, lanIPKey)
		}
	}
	if p.IP == "" && len(e.AddrIPv4) > 0 {
		p.IP = e.AddrIPv4[0].String()
	}
	return p, p.Check() == nil
}
