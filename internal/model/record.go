package model

import "encoding/binary"

// RecordSize is the fixed wire size of a DecisionRecord.
const RecordSize = 64

// crcSpan is the byte range covered by the record CRC (offsets 0..51).
const crcSpan = 52

// DecisionRecord is the per-event output of the risk gate. The wire form
// is exactly 64 bytes, little-endian, cache-line aligned:
//
//	off  sz  field
//	  0   4  seq
//	  4   4  reserved (=0)
//	  8   8  ts_ingress
//	 16   8  ts_decision
//	 24   2  symbol_index
//	 26   1  side
//	 27   1  flags
//	 28   4  qty
//	 32   4  price
//	 36   4  ref_price
//	 40   4  feature0 (ask-bid spread)
//	 44   4  feature1 (bid_qty - ask_qty, signed)
//	 48   4  feature2 (last_trade_px)
//	 52   2  payload_crc16
//	 54   2  pad (=0)
//	 56   8  reserved (=0)
type DecisionRecord struct {
	Seq         uint32
	TsIngress   uint64
	TsDecision  uint64
	SymbolIndex uint16
	Side        Side
	Flags       uint8
	Qty         uint32
	Price       Price
	RefPrice    Price
	Feature0    uint32 // ask-bid spread, unsigned wrap-around on crossed books
	Feature1    int32  // bid_qty - ask_qty
	Feature2    uint32 // last trade price
	CRC         uint16
}

// Accepted reports whether the risk gate accepted the event.
func (r *DecisionRecord) Accepted() bool { return r.Flags&FlagAccept != 0 }

// LatencyNs is the ingress-to-decision pipeline latency.
func (r *DecisionRecord) LatencyNs() uint64 {
	if r.TsDecision < r.TsIngress {
		return 0
	}
	return r.TsDecision - r.TsIngress
}

// Encode serializes the record into dst and writes the CRC last. The CRC
// field of the receiver is updated to the computed value.
func (r *DecisionRecord) Encode(dst *[RecordSize]byte) {
	binary.LittleEndian.PutUint32(dst[0:4], r.Seq)
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], r.TsIngress)
	binary.LittleEndian.PutUint64(dst[16:24], r.TsDecision)
	binary.LittleEndian.PutUint16(dst[24:26], r.SymbolIndex)
	dst[26] = byte(r.Side)
	dst[27] = r.Flags
	binary.LittleEndian.PutUint32(dst[28:32], r.Qty)
	binary.LittleEndian.PutUint32(dst[32:36], uint32(r.Price))
	binary.LittleEndian.PutUint32(dst[36:40], uint32(r.RefPrice))
	binary.LittleEndian.PutUint32(dst[40:44], r.Feature0)
	binary.LittleEndian.PutUint32(dst[44:48], uint32(r.Feature1))
	binary.LittleEndian.PutUint32(dst[48:52], r.Feature2)
	binary.LittleEndian.PutUint16(dst[54:56], 0)
	binary.LittleEndian.PutUint64(dst[56:64], 0)

	r.CRC = CRC16(dst[:crcSpan])
	binary.LittleEndian.PutUint16(dst[52:54], r.CRC)
}

// DecodeRecord deserializes a 64-byte wire record.
func DecodeRecord(src *[RecordSize]byte) DecisionRecord {
	return DecisionRecord{
		Seq:         binary.LittleEndian.Uint32(src[0:4]),
		TsIngress:   binary.LittleEndian.Uint64(src[8:16]),
		TsDecision:  binary.LittleEndian.Uint64(src[16:24]),
		SymbolIndex: binary.LittleEndian.Uint16(src[24:26]),
		Side:        Side(src[26]),
		Flags:       src[27],
		Qty:         binary.LittleEndian.Uint32(src[28:32]),
		Price:       Price(binary.LittleEndian.Uint32(src[32:36])),
		RefPrice:    Price(binary.LittleEndian.Uint32(src[36:40])),
		Feature0:    binary.LittleEndian.Uint32(src[40:44]),
		Feature1:    int32(binary.LittleEndian.Uint32(src[44:48])),
		Feature2:    binary.LittleEndian.Uint32(src[48:52]),
		CRC:         binary.LittleEndian.Uint16(src[52:54]),
	}
}

// VerifyCRC recomputes the CRC over bytes 0..51 of the wire record and
// compares it to the stored value.
func VerifyCRC(src *[RecordSize]byte) bool {
	return CRC16(src[:crcSpan]) == binary.LittleEndian.Uint16(src[52:54])
}

// CRC16 computes CRC-16-CCITT: polynomial 0x1021, initial value 0xFFFF,
// no reflection, no final xor.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
