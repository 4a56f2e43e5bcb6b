package replay

import (
	"bytes"
	"compress/flate"
	"hash/crc32"
	"io"

	"flox/internal/events"
	"flox/pkg/ids"
)

// crcOf computes the frame CRC32 using the IEEE 802.3 polynomial, matching
// the error-kind table's crc-mismatch check on decode.
func crcOf(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// EncodeTrade builds the wire payload for one trade frame.
func EncodeTrade(trade *events.Trade) []byte {
	rec := TradeRecord{
		Symbol:     uint32(trade.Symbol),
		Price:      trade.Price,
		Quantity:   trade.Quantity,
		IsBuy:      trade.IsBuy,
		TradeId:    trade.TradeId,
		ExchangeTs: trade.ExchangeTs,
		RecvTs:     trade.RecvTs,
	}
	buf := marshalTradeRecord(rec)
	return buf[:]
}

// DecodeTrade parses a trade frame payload back into an events.Trade.
func DecodeTrade(payload []byte) (events.Trade, error) {
	rec, err := unmarshalTradeRecord(payload)
	if err != nil {
		return events.Trade{}, err
	}
	return events.Trade{
		Symbol:     ids.SymbolId(rec.Symbol),
		Price:      rec.Price,
		Quantity:   rec.Quantity,
		IsBuy:      rec.IsBuy,
		TradeId:    rec.TradeId,
		ExchangeTs: rec.ExchangeTs,
		RecvTs:     rec.RecvTs,
	}, nil
}

// EncodeBookUpdate builds the wire payload for one book frame: a
// BookRecordHeader followed by BidCount+AskCount BookLevelRecord entries.
func EncodeBookUpdate(update *events.BookUpdate) []byte {
	hdr := BookRecordHeader{
		Symbol:         uint32(update.Symbol),
		Kind:           uint8(update.Kind),
		SequenceNumber: update.SequenceNumber,
		BidCount:       uint16(len(update.Bids)),
		AskCount:       uint16(len(update.Asks)),
	}
	hdrBuf := marshalBookRecordHeader(hdr)

	out := make([]byte, 0, bookRecordHeaderSize+(len(update.Bids)+len(update.Asks))*bookLevelSize)
	out = append(out, hdrBuf[:]...)
	for _, lvl := range update.Bids {
		b := marshalBookLevel(BookLevelRecord{Price: lvl.Price, Quantity: lvl.Quantity})
		out = append(out, b[:]...)
	}
	for _, lvl := range update.Asks {
		b := marshalBookLevel(BookLevelRecord{Price: lvl.Price, Quantity: lvl.Quantity})
		out = append(out, b[:]...)
	}
	return out
}

// DecodeBookUpdate parses a book frame payload into a plain, unpooled
// BookUpdate: replay reads don't need to flow through the live object pool.
func DecodeBookUpdate(payload []byte) (*events.BookUpdate, error) {
	hdr, err := unmarshalBookRecordHeader(payload)
	if err != nil {
		return nil, err
	}
	offset := bookRecordHeaderSize
	bids := make([]events.BookLevel, hdr.BidCount)
	for i := range bids {
		lvl, err := unmarshalBookLevel(payload[offset:])
		if err != nil {
			return nil, err
		}
		bids[i] = events.BookLevel{Price: lvl.Price, Quantity: lvl.Quantity}
		offset += bookLevelSize
	}
	asks := make([]events.BookLevel, hdr.AskCount)
	for i := range asks {
		lvl, err := unmarshalBookLevel(payload[offset:])
		if err != nil {
			return nil, err
		}
		asks[i] = events.BookLevel{Price: lvl.Price, Quantity: lvl.Quantity}
		offset += bookLevelSize
	}
	update := &events.BookUpdate{
		Symbol:         ids.SymbolId(hdr.Symbol),
		Kind:           events.BookUpdateKind(hdr.Kind),
		SequenceNumber: hdr.SequenceNumber,
	}
	update.SetLevels(bids, asks)
	return update, nil
}

// Encoder writes a segment: a header, a stream of CRC-protected frames
// (optionally grouped into flate-compressed blocks), and an optional
// trailing index. w must support Seek so Close can patch the header's
// final FrameCount and IndexOffset once they're known.
type Encoder struct {
	w           io.WriteSeeker
	compression CompressionKind
	blockFrames int
	writeIndex  bool
	createdTsNs int64

	offset     uint64
	frameCount uint32
	index      []IndexEntry

	pending        bytes.Buffer
	pendingCount   int
	pendingFirstTs int64
	havePendingTs  bool
}

// NewEncoder writes a placeholder SegmentHeader to w and returns an
// Encoder ready to accept frames. blockFrames is how many frames are
// grouped per compressed block; it's ignored when compression is
// CompressionNone.
func NewEncoder(w io.WriteSeeker, compression CompressionKind, blockFrames int, writeIndex bool, createdTsNs int64) (*Encoder, error) {
	hdr := marshalSegmentHeader(SegmentHeader{
		Version:     FormatVersion,
		Compression: compression,
		CreatedTsNs: createdTsNs,
	})
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, err
	}
	if blockFrames <= 0 {
		blockFrames = 1
	}
	return &Encoder{
		w:           w,
		compression: compression,
		blockFrames: blockFrames,
		writeIndex:  writeIndex,
		createdTsNs: createdTsNs,
		offset:      segmentHeaderSize,
	}, nil
}

// WriteTrade encodes and appends one trade frame.
func (e *Encoder) WriteTrade(trade *events.Trade) error {
	return e.writeFrame(FrameTrade, EncodeTrade(trade), trade.ExchangeTs)
}

// WriteBookUpdate encodes and appends one book frame. tsNs is the
// timestamp recorded in the index for this frame, since BookUpdate itself
// carries no timestamp field. frameType is FrameBookSnapshot or
// FrameBookDelta, mirroring update.Kind.
func (e *Encoder) WriteBookUpdate(update *events.BookUpdate, frameType FrameType, tsNs int64) error {
	return e.writeFrame(frameType, EncodeBookUpdate(update), tsNs)
}

func (e *Encoder) writeFrame(frameType FrameType, payload []byte, tsNs int64) error {
	fh := marshalFrameHeader(FrameHeader{
		Size:  uint32(len(payload)),
		CRC32: crcOf(payload),
		Type:  frameType,
	})

	e.frameCount++

	if e.compression == CompressionNone {
		startOffset := e.offset
		if _, err := e.w.Write(fh[:]); err != nil {
			return err
		}
		if _, err := e.w.Write(payload); err != nil {
			return err
		}
		e.offset += uint64(len(fh)) + uint64(len(payload))
		if e.writeIndex {
			e.index = append(e.index, IndexEntry{TimestampNs: tsNs, FileOffset: startOffset})
		}
		return nil
	}

	if !e.havePendingTs {
		e.pendingFirstTs = tsNs
		e.havePendingTs = true
	}
	e.pending.Write(fh[:])
	e.pending.Write(payload)
	e.pendingCount++
	if e.pendingCount >= e.blockFrames {
		return e.flushBlock()
	}
	return nil
}

func (e *Encoder) flushBlock() error {
	if e.pendingCount == 0 {
		return nil
	}
	raw := e.pending.Bytes()

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return err
	}
	if _, err := fw.Write(raw); err != nil {
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}

	blockHdr := marshalBlockHeader(CompressedBlockHeader{
		CompressedSize:   uint32(compressed.Len()),
		UncompressedSize: uint32(len(raw)),
		EventCount:       uint32(e.pendingCount),
	})

	startOffset := e.offset
	if _, err := e.w.Write(blockHdr[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(compressed.Bytes()); err != nil {
		return err
	}
	e.offset += uint64(len(blockHdr)) + uint64(compressed.Len())

	if e.writeIndex {
		e.index = append(e.index, IndexEntry{TimestampNs: e.pendingFirstTs, FileOffset: startOffset})
	}

	e.pending.Reset()
	e.pendingCount = 0
	e.havePendingTs = false
	return nil
}

// Close flushes any buffered block, writes the trailing index if
// configured, and patches the segment header with the final frame count
// and index offset.
func (e *Encoder) Close() error {
	if e.compression != CompressionNone {
		if err := e.flushBlock(); err != nil {
			return err
		}
	}

	indexOffset := uint64(0)
	if e.writeIndex {
		indexOffset = e.offset
		if err := e.writeIndexSection(); err != nil {
			return err
		}
	}

	if _, err := e.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr := marshalSegmentHeader(SegmentHeader{
		Version:     FormatVersion,
		Compression: e.compression,
		FrameCount:  e.frameCount,
		IndexOffset: indexOffset,
		CreatedTsNs: e.createdTsNs,
	})
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := e.w.Seek(0, io.SeekEnd)
	return err
}

func (e *Encoder) writeIndexSection() error {
	var entries bytes.Buffer
	for _, entry := range e.index {
		b := marshalIndexEntry(entry)
		entries.Write(b[:])
	}
	hdr := marshalIndexHeader(IndexHeader{
		Count: uint32(len(e.index)),
		CRC32: crcOf(entries.Bytes()),
	})
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := e.w.Write(entries.Bytes())
	return err
}

// Decoder reads a segment written by Encoder, transparently
// decompressing blocks when the segment's header says they're flate-
// compressed.
type Decoder struct {
	r           io.Reader
	compression CompressionKind
	frameCount  uint32
	framesRead  uint32
	pending     *bytes.Reader
}

// NewDecoder reads and validates r's SegmentHeader, returning a Decoder
// positioned at the first frame.
func NewDecoder(r io.Reader) (*Decoder, SegmentHeader, error) {
	var hdrBuf [segmentHeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return nil, SegmentHeader{}, ErrTruncated
	}
	hdr, err := unmarshalSegmentHeader(hdrBuf[:])
	if err != nil {
		return nil, SegmentHeader{}, err
	}
	return &Decoder{r: r, compression: hdr.Compression, frameCount: hdr.FrameCount}, hdr, nil
}

// NewDecoderFromOffset seeks r to offset (as returned by SeekTimestamp)
// and returns a Decoder that reads frames until r runs out, rather than
// counting down from a header's FrameCount. Used to resume mid-segment
// after an index-guided seek.
func NewDecoderFromOffset(r io.ReadSeeker, offset uint64, compression CompressionKind) (*Decoder, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	return &Decoder{r: r, compression: compression, frameCount: ^uint32(0)}, nil
}

// ReadFrame returns the next frame's type and payload, io.EOF once every
// frame the header promised has been read. A payload whose CRC32 fails to
// match is dropped: ReadFrame returns ErrCRCMismatch for that frame and
// the caller should count it and continue reading.
func (d *Decoder) ReadFrame() (FrameType, []byte, error) {
	if d.framesRead >= d.frameCount {
		return 0, nil, io.EOF
	}

	src := d.r
	if d.compression != CompressionNone {
		if d.pending == nil || d.pending.Len() == 0 {
			if err := d.fillPendingBlock(); err != nil {
				return 0, nil, err
			}
		}
		src = d.pending
	}

	var fhBuf [frameHeaderSize]byte
	if _, err := io.ReadFull(src, fhBuf[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrTruncated
	}
	fh, err := unmarshalFrameHeader(fhBuf[:])
	if err != nil {
		return 0, nil, err
	}
	payload := make([]byte, fh.Size)
	if _, err := io.ReadFull(src, payload); err != nil {
		return 0, nil, ErrTruncated
	}
	d.framesRead++
	if crcOf(payload) != fh.CRC32 {
		return fh.Type, nil, ErrCRCMismatch
	}
	return fh.Type, payload, nil
}

func (d *Decoder) fillPendingBlock() error {
	var bhBuf [blockHeaderSize]byte
	if _, err := io.ReadFull(d.r, bhBuf[:]); err != nil {
		return ErrTruncated
	}
	bh, err := unmarshalBlockHeader(bhBuf[:])
	if err != nil {
		return err
	}
	compressed := make([]byte, bh.CompressedSize)
	if _, err := io.ReadFull(d.r, compressed); err != nil {
		return ErrTruncated
	}
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	uncompressed := make([]byte, bh.UncompressedSize)
	if _, err := io.ReadFull(fr, uncompressed); err != nil {
		return err
	}
	d.pending = bytes.NewReader(uncompressed)
	return nil
}

// ReadIndex reads the trailing index at indexOffset from r. It returns nil
// entries and a nil error if indexOffset is zero (no index was written).
func ReadIndex(r io.ReaderAt, indexOffset uint64) ([]IndexEntry, error) {
	if indexOffset == 0 {
		return nil, nil
	}
	var hdrBuf [indexHeaderSize]byte
	if _, err := r.ReadAt(hdrBuf[:], int64(indexOffset)); err != nil {
		return nil, err
	}
	hdr, err := unmarshalIndexHeader(hdrBuf[:])
	if err != nil {
		return nil, err
	}
	entriesBuf := make([]byte, int(hdr.Count)*indexEntrySize)
	if len(entriesBuf) > 0 {
		if _, err := r.ReadAt(entriesBuf, int64(indexOffset)+indexHeaderSize); err != nil {
			return nil, err
		}
	}
	if crcOf(entriesBuf) != hdr.CRC32 {
		return nil, ErrCRCMismatch
	}
	entries := make([]IndexEntry, hdr.Count)
	for i := range entries {
		e, err := unmarshalIndexEntry(entriesBuf[i*indexEntrySize:])
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}
