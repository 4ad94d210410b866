package xwire_test

import (
	"bytes"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xwire"
	"math"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := [][2]int64{{0, 0}, {1, 123456789}, {xwire.ProbeSeq, 42}, {math.MaxInt64, math.MaxInt64}, {1 << 40, -5}}
	for _, c := range cases {
		msg := xwire.EncodeHeader(c[0], c[1])
		if len(msg) != xwire.DefaultDatagramSize {
			t.Fatalf("datagram size = %v", len(msg))
		}
		h, err := xwire.Decode(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if h.Seq != c[0] || h.SendTs != c[1] || h.EchoTs != xwire.Unset {
			t.Fatalf("round trip %v => %+v", c, h)
		}
	}
}

func TestDecodeShort(t *testing.T) {
	msg := xwire.EncodeHeader(9, 9)
	for n := 0; n < xwire.HeaderSize; n++ {
		_, err := xwire.Decode(msg[:n])
		if xerr.CodeOf(err) != xerr.MalformedDatagram {
			t.Fatalf("len %v: err = %v", n, err)
		}
		if xerr.IsFatal(err) {
			t.Fatalf("malformed datagram must be recoverable")
		}
	}
	if _, err := xwire.Decode(msg[:xwire.HeaderSize]); err != nil {
		t.Fatalf("exact header length rejected: %v", err)
	}
	if _, err := xwire.Decode(nil); err == nil {
		t.Fatal("nil accepted")
	}
}

func TestStampEchoOnlyTouchesEchoField(t *testing.T) {
	msg := xwire.EncodeHeader(77, 1000)
	orig := append([]byte(nil), msg...)

	if err := xwire.StampEcho(msg, 5000); err != nil {
		t.Fatal(err)
	}
	first := append([]byte(nil), msg...)
	if err := xwire.StampEcho(msg, 6000); err != nil {
		t.Fatal(err)
	}

	h, _ := xwire.Decode(msg)
	if h.Seq != 77 || h.SendTs != 1000 || h.EchoTs != 6000 {
		t.Fatalf("header = %+v", h)
	}
	// 除EchoTs外字节不变
	if !bytes.Equal(orig[:16], msg[:16]) || !bytes.Equal(orig[24:], msg[24:]) {
		t.Fatal("bytes outside echo field changed")
	}
	if !bytes.Equal(first[:16], msg[:16]) {
		t.Fatal("repeated echo changed sequence fields")
	}
	if err := xwire.StampEcho(msg[:10], 1); xerr.CodeOf(err) != xerr.MalformedDatagram {
		t.Fatalf("short stamp err = %v", err)
	}
}

func TestEncodeCustomSize(t *testing.T) {
	buf := make([]byte, 64)
	n, err := xwire.Encode(buf, 3, 4)
	if err != nil || n != 64 {
		t.Fatalf("encode = %v, %v", n, err)
	}
	if _, err := xwire.Encode(make([]byte, 8), 1, 1); err == nil {
		t.Fatal("short buffer accepted")
	}
}

func TestNowMonotonic(t *testing.T) {
	a := xwire.Now()
	b := xwire.Now()
	if a < 0 || b < a {
		t.Fatalf("clock went backwards: %v %v", a, b)
	}
}
