package logger

import (
	"bytes"
	"fmt"
	"testing"
)

func TestLogAndTail(t *testing.T) {
	Clear()
	defer Clear()

	var buf bytes.Buffer
	Write(&buf)
	if buf.String() != "" {
		t.Fatalf("empty log wrote %q", buf.String())
	}

	Log("test", "this is a test")
	Logf("test2", "value %d", 2)

	buf.Reset()
	Write(&buf)
	if want := "test: this is a test\ntest2: value 2\n"; buf.String() != want {
		t.Fatalf("Write = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	Tail(&buf, 100)
	if want := "test: this is a test\ntest2: value 2\n"; buf.String() != want {
		t.Fatalf("Tail(100) = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	Tail(&buf, 1)
	if want := "test2: value 2\n"; buf.String() != want {
		t.Fatalf("Tail(1) = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	Tail(&buf, 0)
	if buf.String() != "" {
		t.Fatalf("Tail(0) = %q", buf.String())
	}
}

func TestRepeatsFold(t *testing.T) {
	Clear()
	defer Clear()

	Log("dmi", "busy")
	Log("dmi", "busy")
	Log("dmi", "busy")

	got := Recent(10)
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if want := "dmi: busy (repeat x3)\n"; got[0].String() != want {
		t.Fatalf("entry = %q, want %q", got[0].String(), want)
	}
}

func TestBounded(t *testing.T) {
	Clear()
	defer Clear()

	for i := 0; i < maxCentral+10; i++ {
		Logf("n", "%d", i)
	}
	got := Recent(maxCentral * 2)
	if len(got) != maxCentral {
		t.Fatalf("entries = %d, want %d", len(got), maxCentral)
	}
	if got[0].Detail != fmt.Sprint(10) {
		t.Fatalf("oldest = %q, want 10", got[0].Detail)
	}
}

func TestEcho(t *testing.T) {
	Clear()
	defer Clear()

	var buf bytes.Buffer
	SetEcho(&buf)
	defer SetEcho(nil)

	Log("tap", "reset")
	if want := "tap: reset\n"; buf.String() != want {
		t.Fatalf("echo = %q, want %q", buf.String(), want)
	}
}
