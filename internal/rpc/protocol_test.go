package rpc

import (
	"bytes"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "abc", "four", "nzbget/1.0"}
	for _, s := range cases {
		var buf bytes.Buffer
		putString(&buf, s)

		if buf.Len()%4 != 0 {
			t.Fatalf("putString(%q) produced unaligned frame of %d bytes", s, buf.Len())
		}

		got, err := readString(&buf)
		if err != nil {
			t.Fatalf("readString(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("round-trip mismatch: want %q, got %q", s, got)
		}
	}
}

func TestHiLoRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 1 << 40, -(1 << 40), 1234567890123}
	for _, v := range cases {
		hi, lo := splitHiLo(v)
		if got := joinHiLo(hi, lo); got != v {
			t.Fatalf("splitHiLo/joinHiLo(%d): got %d", v, got)
		}
	}
}

func TestReadRequestHeaderRejectsBadSignature(t *testing.T) {
	var buf bytes.Buffer
	putUint32(&buf, 0xDEADBEEF)
	putUint32(&buf, 12)
	putUint32(&buf, uint32(TypeVersion))

	if _, err := ReadRequestHeader(&buf); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestBoolTextRoundTrip(t *testing.T) {
	body := encodeBoolText(true, "ok")
	r := bytes.NewReader(body)

	ok, err := readBool(r)
	if err != nil || !ok {
		t.Fatalf("readBool: %v, %v", ok, err)
	}
	text, err := readString(r)
	if err != nil || text != "ok" {
		t.Fatalf("readString: %q, %v", text, err)
	}
}
