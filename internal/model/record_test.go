package model

import (
	"encoding/binary"
	"testing"
)

func TestCRC16_KnownVector(t *testing.T) {
	// Standard CCITT-FALSE check value.
	got := CRC16([]byte("123456789"))
	if got != 0x29B1 {
		t.Errorf("CRC16(123456789) = %#04x, want 0x29b1", got)
	}
}

func TestCRC16_Empty(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16(nil) = %#04x, want 0xffff", got)
	}
}

func TestRecordEncode_Layout(t *testing.T) {
	r := DecisionRecord{
		Seq:         0x01020304,
		TsIngress:   0x1112131415161718,
		TsDecision:  0x2122232425262728,
		SymbolIndex: 0x0A0B,
		Side:        SideAsk,
		Flags:       FlagAccept | FlagStale,
		Qty:         500,
		Price:       1502500,
		RefPrice:    1500000,
		Feature0:    2500,
		Feature1:    -300,
		Feature2:    1501000,
	}

	var buf [RecordSize]byte
	r.Encode(&buf)

	if got := binary.LittleEndian.Uint32(buf[0:4]); got != 0x01020304 {
		t.Errorf("seq = %#x, want 0x01020304", got)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != 0 {
		t.Errorf("reserved0 = %d, want 0", got)
	}
	if got := binary.LittleEndian.Uint64(buf[8:16]); got != r.TsIngress {
		t.Errorf("ts_ingress = %#x, want %#x", got, r.TsIngress)
	}
	if got := binary.LittleEndian.Uint64(buf[16:24]); got != r.TsDecision {
		t.Errorf("ts_decision = %#x, want %#x", got, r.TsDecision)
	}
	if got := binary.LittleEndian.Uint16(buf[24:26]); got != 0x0A0B {
		t.Errorf("symbol_index = %#x, want 0x0a0b", got)
	}
	if buf[26] != 1 {
		t.Errorf("side = %d, want 1", buf[26])
	}
	if buf[27] != (FlagAccept | FlagStale) {
		t.Errorf("flags = %#x, want %#x", buf[27], FlagAccept|FlagStale)
	}
	if got := binary.LittleEndian.Uint32(buf[28:32]); got != 500 {
		t.Errorf("qty = %d, want 500", got)
	}
	if got := binary.LittleEndian.Uint32(buf[32:36]); got != 1502500 {
		t.Errorf("price = %d, want 1502500", got)
	}
	if got := binary.LittleEndian.Uint32(buf[36:40]); got != 1500000 {
		t.Errorf("ref_price = %d, want 1500000", got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[44:48])); got != -300 {
		t.Errorf("feature1 = %d, want -300", got)
	}
	if got := binary.LittleEndian.Uint16(buf[54:56]); got != 0 {
		t.Errorf("pad = %d, want 0", got)
	}
	if got := binary.LittleEndian.Uint64(buf[56:64]); got != 0 {
		t.Errorf("reserved1 = %d, want 0", got)
	}

	if !VerifyCRC(&buf) {
		t.Error("VerifyCRC failed on freshly encoded record")
	}
	if want := CRC16(buf[:52]); r.CRC != want {
		t.Errorf("stored CRC = %#04x, want %#04x", r.CRC, want)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	in := DecisionRecord{
		Seq:         42,
		TsIngress:   1000,
		TsDecision:  1500,
		SymbolIndex: 3,
		Side:        SideBid,
		Flags:       FlagKill,
		Qty:         100,
		Price:       1500000,
		RefPrice:    1500000,
		Feature0:    0,
		Feature1:    100,
		Feature2:    0,
	}

	var buf [RecordSize]byte
	in.Encode(&buf)
	out := DecodeRecord(&buf)

	if out != in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestRecordCRC_DetectsCorruption(t *testing.T) {
	r := DecisionRecord{Seq: 7, Price: 1234500}
	var buf [RecordSize]byte
	r.Encode(&buf)

	buf[33] ^= 0xFF
	if VerifyCRC(&buf) {
		t.Error("VerifyCRC passed on corrupted record")
	}
}

func TestRecordLatency(t *testing.T) {
	r := DecisionRecord{TsIngress: 100, TsDecision: 350}
	if got := r.LatencyNs(); got != 250 {
		t.Errorf("LatencyNs = %d, want 250", got)
	}

	// Clamped, never wraps.
	r = DecisionRecord{TsIngress: 400, TsDecision: 300}
	if got := r.LatencyNs(); got != 0 {
		t.Errorf("LatencyNs = %d, want 0", got)
	}
}
