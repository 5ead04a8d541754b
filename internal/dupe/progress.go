package dupe

import "sync/atomic"

// Progress holds live counters updated while a check runs. All fields are
// atomic so they can be written from hash workers and read from another
// goroutine (e.g. an HTTP status handler) without locks.
type Progress struct {
	FilesDiscovered atomic.Int64 // regular files yielded by directory walks
	Candidates      atomic.Int64 // files that entered a size bucket with >=2 members
	PartialHashed   atomic.Int64 // partial (prefix) digests computed
	FullHashed      atomic.Int64 // full content digests computed
	BytesRead       atomic.Int64 // bytes read by digest computations
	Errors          atomic.Int64 // CheckErrors recorded
}
