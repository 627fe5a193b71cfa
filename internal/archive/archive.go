// Package archive packs many small files into one in-memory archive on
// the client, and parses + extracts such archives concurrently on the
// server.
package archive

// SmallFileThreshold is the inclusive size cutoff below which a file is
// packed into an archive rather than transferred with its own
// UploadFile/DataBlock sequence.
const SmallFileThreshold = 256 * 1024 // 256 KiB

// MaxArchiveBytes and MaxArchiveEntries are the rollover thresholds:
// Holder.NearlyFull reports true once either is reached, so the caller
// freezes the current holder and starts a fresh one.
const (
	MaxArchiveBytes   = 128 << 20 // 128 MiB
	MaxArchiveEntries = 1024
)

// entryHeaderLen is path_len(u32) + perm_bits(u32) + data_len(u64).
const entryHeaderLen = 4 + 4 + 8

// Status is the per-archive extraction outcome reported through
// Pool.CheckExtracted.
type Status int32

const (
	StatusSuccess Status = 0
	StatusFailure Status = 1
)

// Result pairs a client-assigned seq id with its extraction outcome.
type Result struct {
	SeqID  uint64
	Status Status
}
