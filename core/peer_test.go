package core

import (
	"strings"
	"testing"
)

func TestPeerCheck(t *testing.T) {
	if err := (Peer{IP: "127.0.0.1", Port: 3002}).Check(); err != nil {
		t.Fatalf("valid peer rejected: %v", err)
	}
	if err := (Peer{Port: 3002}).Check(); err == nil || err.Error() != "peer is missing ip" {
		t.Fatalf("peer without ip: %v", err)
	}
	for _, port := range []int{0, -1, 65536} {
		err := (Peer{IP: "127.0.0.1", Port: port}).Check()
		if err == nil || !strings.Contains(err.Error(), "out of range") {
			t.Errorf("port %d: %v", port, err)
		}
	}
}
