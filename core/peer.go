package core

import (
	"errors"
	"fmt"
	gonet "net"
	"strconv"

	ma "github.com/multiformats/go-multiaddr"
)

// Peer is a node address. Two peers are the same node iff ip and port match.
type Peer struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Check rejects malformed descriptors.
func (p Peer) Check() error {
	if p.IP == "" {
		return errors.New("peer is missing ip")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("peer port %d out of range", p.Port)
	}
	return nil
}

// Addr returns host:port.
func (p Peer) Addr() string {
	return gonet.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

func (p Peer) String() string {
	return p.Addr()
}

// Multiaddr renders the peer as /ip4|/ip6|/dns/<host>/tcp/<port>.
func (p Peer) Multiaddr() (ma.Multiaddr, error) {
	proto := "dns"
	if ip := gonet.ParseIP(p.IP); ip != nil {
		proto = "ip6"
		if ip.To4() != nil {
			proto = "ip4"
		}
	}
	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", proto, p.IP, p.Port))
}
