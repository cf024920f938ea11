package net

import (
	"encoding/json"
	"testing"

	"powledger/core"
)

func TestWantsHead(t *testing.T) {
	self := core.Peer{IP: "127.0.0.1", Port: 3002}
	other := core.Peer{IP: "127.0.0.1", Port: 3003}

	tests := []struct {
		name string
		ann  HeadAnnouncement
		want bool
	}{
		{"longer head from a neighbor", HeadAnnouncement{Length: 3, Origin: other}, true},
		{"equal length", HeadAnnouncement{Length: 2, Origin: other}, false},
		{"shorter head", HeadAnnouncement{Length: 1, Origin: other}, false},
		{"our own announcement", HeadAnnouncement{Length: 9, Origin: self}, false},
		{"origin without ip", HeadAnnouncement{Length: 9, Origin: core.Peer{Port: 3004}}, false},
		{"origin with bad port", HeadAnnouncement{Length: 9, Origin: core.Peer{IP: "127.0.0.1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wantsHead(tt.ann, self, 2); got != tt.want {
				t.Errorf("wantsHead(%+v) = %v, want %v", tt.ann, got, tt.want)
			}
		})
	}
}

func TestHeadAnnouncementWireFormat(t *testing.T) {
	ann := HeadAnnouncement{Length: 3, Hash: "ab", Origin: core.Peer{IP: "127.0.0.1", Port: 3003}}
	data, err := json.Marshal(ann)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"length":3,"hash":"ab","origin":{"ip":"127.0.0.1","port":3003}}` {
		t.Fatalf("unexpected wire form %s", data)
	}
	if len(data) > maxWireHead {
		t.Fatalf("announcement of %d bytes exceeds the wire limit", len(data))
	}
}
