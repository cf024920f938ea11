package net

import "powledger/core"

// TopicHeads carries HeadAnnouncement messages.
const TopicHeads = "ledger/heads/1"

// HeadAnnouncement tells gossip peers that origin's chain has a new tail.
// Receivers with a shorter chain fetch origin's chain over HTTP and resolve.
type HeadAnnouncement struct {
	Length int       `json:"length"`
	Hash   string    `json:"hash"`
	Origin core.Peer `json:"origin"`
}
