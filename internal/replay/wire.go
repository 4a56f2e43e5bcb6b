package replay

import "encoding/binary"

func putBool(b byte) bool { return b != 0 }

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func marshalSegmentHeader(h SegmentHeader) [segmentHeaderSize]byte {
	var buf [segmentHeaderSize]byte
	copy(buf[0:4], magicFlox[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	buf[8] = byte(h.Compression)
	binary.LittleEndian.PutUint32(buf[12:16], h.FrameCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.CreatedTsNs))
	return buf
}

func unmarshalSegmentHeader(buf []byte) (SegmentHeader, error) {
	if len(buf) < segmentHeaderSize {
		return SegmentHeader{}, ErrTruncated
	}
	if [4]byte(buf[0:4]) != magicFlox {
		return SegmentHeader{}, ErrBadMagic
	}
	h := SegmentHeader{
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Flags:       binary.LittleEndian.Uint16(buf[6:8]),
		Compression: CompressionKind(buf[8]),
		FrameCount:  binary.LittleEndian.Uint32(buf[12:16]),
		IndexOffset: binary.LittleEndian.Uint64(buf[16:24]),
		CreatedTsNs: int64(binary.LittleEndian.Uint64(buf[24:32])),
	}
	if h.Version > FormatVersion {
		return SegmentHeader{}, ErrUnsupportedVersion
	}
	return h, nil
}

func marshalFrameHeader(h FrameHeader) [frameHeaderSize]byte {
	var buf [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	binary.LittleEndian.PutUint32(buf[4:8], h.CRC32)
	buf[8] = byte(h.Type)
	buf[9] = h.RecVersion
	return buf
}

func unmarshalFrameHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < frameHeaderSize {
		return FrameHeader{}, ErrTruncated
	}
	return FrameHeader{
		Size:       binary.LittleEndian.Uint32(buf[0:4]),
		CRC32:      binary.LittleEndian.Uint32(buf[4:8]),
		Type:       FrameType(buf[8]),
		RecVersion: buf[9],
	}, nil
}

func marshalTradeRecord(r TradeRecord) [tradeRecordSize]byte {
	var buf [tradeRecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.Symbol)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.Price))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(r.Quantity))
	buf[20] = boolByte(r.IsBuy)
	binary.LittleEndian.PutUint64(buf[24:32], r.TradeId)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(r.ExchangeTs))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(r.RecvTs))
	return buf
}

func unmarshalTradeRecord(buf []byte) (TradeRecord, error) {
	if len(buf) < tradeRecordSize {
		return TradeRecord{}, ErrTruncated
	}
	return TradeRecord{
		Symbol:     binary.LittleEndian.Uint32(buf[0:4]),
		Price:      int64(binary.LittleEndian.Uint64(buf[4:12])),
		Quantity:   int64(binary.LittleEndian.Uint64(buf[12:20])),
		IsBuy:      putBool(buf[20]),
		TradeId:    binary.LittleEndian.Uint64(buf[24:32]),
		ExchangeTs: int64(binary.LittleEndian.Uint64(buf[32:40])),
		RecvTs:     int64(binary.LittleEndian.Uint64(buf[40:48])),
	}, nil
}

func marshalBookRecordHeader(h BookRecordHeader) [bookRecordHeaderSize]byte {
	var buf [bookRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Symbol)
	buf[4] = h.Kind
	binary.LittleEndian.PutUint64(buf[8:16], h.SequenceNumber)
	binary.LittleEndian.PutUint16(buf[16:18], h.BidCount)
	binary.LittleEndian.PutUint16(buf[18:20], h.AskCount)
	return buf
}

func unmarshalBookRecordHeader(buf []byte) (BookRecordHeader, error) {
	if len(buf) < bookRecordHeaderSize {
		return BookRecordHeader{}, ErrTruncated
	}
	return BookRecordHeader{
		Symbol:         binary.LittleEndian.Uint32(buf[0:4]),
		Kind:           buf[4],
		SequenceNumber: binary.LittleEndian.Uint64(buf[8:16]),
		BidCount:       binary.LittleEndian.Uint16(buf[16:18]),
		AskCount:       binary.LittleEndian.Uint16(buf[18:20]),
	}, nil
}

func marshalBookLevel(l BookLevelRecord) [bookLevelSize]byte {
	var buf [bookLevelSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(l.Price))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(l.Quantity))
	return buf
}

func unmarshalBookLevel(buf []byte) (BookLevelRecord, error) {
	if len(buf) < bookLevelSize {
		return BookLevelRecord{}, ErrTruncated
	}
	return BookLevelRecord{
		Price:    int64(binary.LittleEndian.Uint64(buf[0:8])),
		Quantity: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}

func marshalBlockHeader(h CompressedBlockHeader) [blockHeaderSize]byte {
	var buf [blockHeaderSize]byte
	copy(buf[0:4], magicBlock[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.UncompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.EventCount)
	return buf
}

func unmarshalBlockHeader(buf []byte) (CompressedBlockHeader, error) {
	if len(buf) < blockHeaderSize {
		return CompressedBlockHeader{}, ErrTruncated
	}
	if [4]byte(buf[0:4]) != magicBlock {
		return CompressedBlockHeader{}, ErrBadMagic
	}
	return CompressedBlockHeader{
		CompressedSize:   binary.LittleEndian.Uint32(buf[4:8]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[8:12]),
		EventCount:       binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

func marshalIndexHeader(h IndexHeader) [indexHeaderSize]byte {
	var buf [indexHeaderSize]byte
	copy(buf[0:4], magicIndex[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Count)
	binary.LittleEndian.PutUint32(buf[8:12], h.CRC32)
	return buf
}

func unmarshalIndexHeader(buf []byte) (IndexHeader, error) {
	if len(buf) < indexHeaderSize {
		return IndexHeader{}, ErrTruncated
	}
	if [4]byte(buf[0:4]) != magicIndex {
		return IndexHeader{}, ErrBadMagic
	}
	return IndexHeader{
		Count: binary.LittleEndian.Uint32(buf[4:8]),
		CRC32: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

func marshalIndexEntry(e IndexEntry) [indexEntrySize]byte {
	var buf [indexEntrySize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.TimestampNs))
	binary.LittleEndian.PutUint64(buf[8:16], e.FileOffset)
	return buf
}

func unmarshalIndexEntry(buf []byte) (IndexEntry, error) {
	if len(buf) < indexEntrySize {
		return IndexEntry{}, ErrTruncated
	}
	return IndexEntry{
		TimestampNs: int64(binary.LittleEndian.Uint64(buf[0:8])),
		FileOffset:  uint64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}
