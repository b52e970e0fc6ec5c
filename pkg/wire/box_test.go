package wire

import (
	"bytes"
	"testing"
)

func TestPackageBoxRoundTrip(t *testing.T) {
	box := &PackageBox{
		Version:    1,
		Seq:        42,
		Cmd:        CmdSynTunnel,
		Ciphertext: []byte("hello tunnel"),
	}

	encoded, err := box.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeBox(encoded)
	if err != nil {
		t.Fatalf("DecodeBox: %v", err)
	}

	if decoded.Version != box.Version || decoded.Seq != box.Seq || decoded.Cmd != box.Cmd {
		t.Fatalf("header mismatch: got %+v", decoded)
	}
	if !bytes.Equal(decoded.Ciphertext, box.Ciphertext) {
		t.Fatalf("ciphertext mismatch: got %q want %q", decoded.Ciphertext, box.Ciphertext)
	}
}

func TestDecodeBoxRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 10)
	buf[0] = 0x00
	if _, err := DecodeBox(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestParserFeedsAcrossFragments(t *testing.T) {
	box := &PackageBox{Version: 1, Seq: 7, Cmd: CmdPingTunnel, Ciphertext: []byte("ping-payload")}
	encoded, err := box.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	p := NewParser()

	// Feed byte-by-byte to exercise both parser states repeatedly.
	var got []*PackageBox
	for i := 0; i < len(encoded); i++ {
		boxes, err := p.Feed(encoded[i : i+1])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		got = append(got, boxes...)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 box, got %d", len(got))
	}
	if !bytes.Equal(got[0].Ciphertext, box.Ciphertext) {
		t.Fatalf("ciphertext mismatch after fragmented feed: %q", got[0].Ciphertext)
	}
}

func TestParserHandlesMultipleBoxesInOneFeed(t *testing.T) {
	b1, _ := (&PackageBox{Version: 1, Seq: 1, Cmd: CmdDatagram, Ciphertext: []byte("a")}).Encode()
	b2, _ := (&PackageBox{Version: 1, Seq: 2, Cmd: CmdDatagram, Ciphertext: []byte("bb")}).Encode()

	p := NewParser()
	boxes, err := p.Feed(append(b1, b2...))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}
	if string(boxes[0].Ciphertext) != "a" || string(boxes[1].Ciphertext) != "bb" {
		t.Fatalf("unexpected payloads: %q %q", boxes[0].Ciphertext, boxes[1].Ciphertext)
	}
}

func TestErrorRetryable(t *testing.T) {
	e := ErrConnectFailed("dial timed out")
	if !e.IsRetryable() {
		t.Fatal("ConnectFailed should be retryable")
	}
	e2 := ErrPermissionDenied("nope")
	if e2.IsRetryable() {
		t.Fatal("PermissionDenied should not be retryable")
	}
}
