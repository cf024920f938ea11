package net

import (
	"fmt"
	gonet "net"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"

	"powledger/core"
)

// ParsePeer reads a peer given as host:port or as a multiaddr such as
// /ip4/127.0.0.1/tcp/3002 or /dns4/localhost/tcp/3002.
func ParsePeer(s string) (core.Peer, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "/") {
		return peerFromMultiaddr(s)
	}
	host, portStr, err := gonet.SplitHostPort(s)
	if err != nil {
		return core.Peer{}, fmt.Errorf("parse peer %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return core.Peer{}, fmt.Errorf("parse peer %q: bad port: %w", s, err)
	}
	p := core.Peer{IP: host, Port: port}
	if err := p.Check(); err != nil {
		return core.Peer{}, fmt.Errorf("parse peer %q: %w", s, err)
	}
	return p, nil
}

func peerFromMultiaddr(s string) (core.Peer, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return core.Peer{}, fmt.Errorf("parse multiaddr %q: %w", s, err)
	}
	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS4, ma.P_DNS6, ma.P_DNS} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return core.Peer{}, fmt.Errorf("multiaddr %q has no ip or dns component", s)
	}
	portStr, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return core.Peer{}, fmt.Errorf("multiaddr %q has no tcp component", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return core.Peer{}, fmt.Errorf("multiaddr %q: bad port: %w", s, err)
	}
	p := core.Peer{IP: host, Port: port}
	if err := p.Check(); err != nil {
		return core.Peer{}, err
	}
	return p, nil
}
