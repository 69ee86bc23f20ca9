package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger_RoutesMessages(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("frames=%d", 12)

	if got != "frames=12" {
		t.Errorf("got %q, want %q", got, "frames=12")
	}
}

func TestSetLogger_NilIsNoop(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	SetLogger(nil)
	Logf("should be dropped %d", 1)
}

func TestMute_Restores(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	calls := 0
	SetLogger(func(string, ...interface{}) { calls++ })

	restore := Mute()
	Logf("muted")
	if calls != 0 {
		t.Fatalf("muted logger was called %d times", calls)
	}

	restore()
	Logf("audible")
	if calls != 1 {
		t.Errorf("restored logger calls = %d, want 1", calls)
	}
}
