package xclient_test

import (
	"dstaping/pkg/xclient"
	"dstaping/pkg/xerr"
	"dstaping/pkg/xstats"
	"math"
	"testing"
	"time"
)

func TestRateFormula(t *testing.T) {
	interval, err := xclient.TickInterval(1024, 1, 8192)
	if err != nil {
		t.Fatal(err)
	}
	if interval != time.Second {
		t.Fatalf("interval %v", interval)
	}
	final, err := xclient.FinalSequence(1, 8192, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if final != 1 {
		t.Fatalf("final %v", final)
	}

	// 1Mbit/s, 每次2包: 2048*1e9/125000
	interval, err = xclient.TickInterval(1024, 2, 1000000)
	if err != nil || interval != 16384*time.Microsecond {
		t.Fatalf("interval %v %v", interval, err)
	}
	final, err = xclient.FinalSequence(10, 1000000, 1024)
	if err != nil || final != 1220 {
		t.Fatalf("final %v %v", final, err)
	}
}

func TestRateErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code xerr.Code
	}{
		{"zero bitrate", errOf(xclient.TickInterval(1024, 1, 7)), xerr.InvalidConfig},
		{"zero frame rate", errOf(xclient.TickInterval(1024, 0, 8192)), xerr.InvalidConfig},
		{"interval overflow", errOf(xclient.TickInterval(math.MaxInt32, math.MaxInt32, 8192)), xerr.SequenceOverflow},
		{"interval too short", errOf(xclient.TickInterval(1, 1, math.MaxInt64)), xerr.InvalidConfig},
		{"sequence overflow", errOf(xclient.FinalSequence(math.MaxInt64, 8192, 1024)), xerr.SequenceOverflow},
		{"table too large", errOf(xclient.FinalSequence(1, (xstats.MaxTableSize+1)*8, 1)), xerr.TableTooLarge},
		{"nothing to send", errOf(xclient.FinalSequence(1, 8, 1024)), xerr.InvalidConfig},
	}
	for _, c := range cases {
		if xerr.CodeOf(c.err) != c.code || !xerr.IsFatal(c.err) {
			t.Errorf("%v: err = %v", c.name, c.err)
		}
	}
}

func errOf[T any](_ T, err error) error {
	return err
}
