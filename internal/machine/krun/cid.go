package krun

import "sync/atomic"

// firstCID is the first CID handed out. Low values are reserved, so local
// identifiers start at 3.
const firstCID = 3

var cidCounter atomic.Uint32

// nextCID returns a process-wide unique CID. CIDs are monotonically
// increasing and never reclaimed, even after the owning context is freed, so
// a stale reference can never alias a live machine. Not persisted across
// process restarts.
func nextCID() uint32 {
	return firstCID - 1 + cidCounter.Add(1)
}
