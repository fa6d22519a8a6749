package model

import (
	"math"
	"time"
)

// ActorUnknown fills both UserID and Role on entries for failed logins
// where no account could be identified.
const ActorUnknown = "unknown"

// LogEntry is one row of the append-only activity log.
//
// Seq orders entries by insertion and is assigned by the store. PrevHash is
// the Hash of the entry with the previous Seq (empty for the first entry).
// Scheme names the digest function that produced Hash.
type LogEntry struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prevHash,omitempty"`
	Scheme    string    `json:"scheme"`
}

// Timestamps are stored as Unix nanoseconds, which cover only this range.
var (
	EarliestLogTime = time.Unix(0, math.MinInt64).UTC()
	LatestLogTime   = time.Unix(0, math.MaxInt64).UTC()
)

// LogFilter narrows a log listing. Zero values mean "no constraint".
// Action matches as a case-insensitive substring.
type LogFilter struct {
	UserID string
	Role   string
	Action string
	From   time.Time
	To     time.Time
	Limit  int
}
