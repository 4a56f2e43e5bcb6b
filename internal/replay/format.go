// Package replay implements the binary segment/frame codec trades and book
// updates are persisted in for later replay: a SegmentHeader followed by a
// stream of frames and an optional trailing index, little-endian
// throughout, every frame individually CRC32-protected.
package replay

import "errors"

// magicFlox, magicBlock, and magicIndex tag a SegmentHeader,
// CompressedBlockHeader, and IndexHeader respectively, so a reader can
// fail fast on a file that isn't what it claims to be.
var (
	magicFlox  = [4]byte{'F', 'L', 'O', 'X'}
	magicBlock = [4]byte{'F', 'B', 'L', 'K'}
	magicIndex = [4]byte{'I', 'N', 'D', 'X'}
)

// FormatVersion is the current on-disk segment format version.
const FormatVersion uint16 = 1

// CompressionKind selects whether a segment's frames are wrapped in
// compressed blocks.
type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionFlate
)

// FrameType discriminates the payload a frame carries.
type FrameType uint8

const (
	FrameTrade FrameType = iota
	FrameBookSnapshot
	FrameBookDelta
)

// segmentHeaderSize, frameHeaderSize, tradeRecordSize, bookRecordHeaderSize,
// bookLevelSize, blockHeaderSize, and indexHeaderSize are the exact wire
// sizes of each fixed-layout structure, in bytes.
const (
	segmentHeaderSize    = 64
	frameHeaderSize      = 12
	tradeRecordSize      = 48
	bookRecordHeaderSize = 40
	bookLevelSize        = 16
	blockHeaderSize      = 16
	indexHeaderSize      = 16
	indexEntrySize       = 16
)

var (
	// ErrBadMagic is returned when a header's magic bytes don't match what
	// the reader expects.
	ErrBadMagic = errors.New("replay: bad magic")
	// ErrCRCMismatch is returned when a frame's payload fails its CRC32
	// check; the frame is dropped and an error counter incremented by the
	// caller, per the crc-mismatch error kind.
	ErrCRCMismatch = errors.New("replay: crc mismatch")
	// ErrUnsupportedVersion is returned for a segment format version this
	// codec doesn't know how to read.
	ErrUnsupportedVersion = errors.New("replay: unsupported segment version")
	// ErrTruncated is returned when a read ends before a complete
	// structure could be parsed.
	ErrTruncated = errors.New("replay: truncated read")
)

// SegmentHeader is the 64-byte header at the start of every segment file.
type SegmentHeader struct {
	Version     uint16
	Flags       uint16
	Compression CompressionKind
	FrameCount  uint32
	IndexOffset uint64
	CreatedTsNs int64
}

// FrameHeader precedes every frame's payload.
type FrameHeader struct {
	Size       uint32
	CRC32      uint32
	Type       FrameType
	RecVersion uint8
}

// TradeRecord is the fixed 48-byte on-disk encoding of an events.Trade.
type TradeRecord struct {
	Symbol     uint32
	Price      int64
	Quantity   int64
	IsBuy      bool
	TradeId    uint64
	ExchangeTs int64
	RecvTs     int64
}

// BookRecordHeader precedes a book frame's variable-length level entries.
type BookRecordHeader struct {
	Symbol         uint32
	Kind           uint8
	SequenceNumber uint64
	BidCount       uint16
	AskCount       uint16
}

// BookLevelRecord is the 16-byte on-disk encoding of one events.BookLevel.
type BookLevelRecord struct {
	Price    int64
	Quantity int64
}

// CompressedBlockHeader precedes a group of frames compressed together in
// compressed mode.
type CompressedBlockHeader struct {
	CompressedSize   uint32
	UncompressedSize uint32
	EventCount       uint32
}

// IndexHeader precedes a segment's trailing index, if one was written.
type IndexHeader struct {
	Count uint32
	CRC32 uint32
}

// IndexEntry maps a timestamp to the byte offset of the frame at or just
// after it, for seeking into a segment without a linear scan.
type IndexEntry struct {
	TimestampNs int64
	FileOffset  uint64
}
