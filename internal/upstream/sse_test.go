package upstream

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestScanEvents_DecodesHexPayload(t *testing.T) {
	raw := []byte{0x0a, 0x01, 0x41}
	body := "data: " + hex.EncodeToString(raw) + "\n\n"

	var got []byte
	err := ScanEvents(strings.NewReader(body), func(payload []byte, decodeErr error) error {
		if decodeErr != nil {
			t.Fatal(decodeErr)
		}
		got = payload
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("got %x, want %x", got, raw)
	}
}

func TestScanEvents_DecodesBase64URLPaddedPayload(t *testing.T) {
	raw := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	body := "data: " + encoded + "\n\n"

	var got []byte
	err := ScanEvents(strings.NewReader(body), func(payload []byte, decodeErr error) error {
		if decodeErr != nil {
			t.Fatal(decodeErr)
		}
		got = payload
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("got %x, want %x", got, raw)
	}
}

func TestScanEvents_JoinsMultipleDataLinesBeforeBlankLine(t *testing.T) {
	raw := []byte("hello warp")
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	half := len(encoded) / 2
	body := "data: " + encoded[:half] + "\ndata: " + encoded[half:] + "\n\n"

	var got []byte
	err := ScanEvents(strings.NewReader(body), func(payload []byte, decodeErr error) error {
		if decodeErr != nil {
			t.Fatal(decodeErr)
		}
		got = payload
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Errorf("got %q, want %q", got, raw)
	}
}

func TestScanEvents_StopsOnDoneMarker(t *testing.T) {
	body := "data: [DONE]\n\n"
	err := ScanEvents(strings.NewReader(body), func(payload []byte, decodeErr error) error {
		t.Fatal("onEvent should not be called for [DONE]")
		return nil
	})
	if !errors.Is(err, ErrStreamDone) {
		t.Fatalf("err = %v, want ErrStreamDone", err)
	}
}

func TestScanEvents_DecodeErrorIsNonFatalWhenCallbackSwallowsIt(t *testing.T) {
	body := "data: not valid base64url!!\n\ndata: " + base64.RawURLEncoding.EncodeToString([]byte("ok")) + "\n\n"

	var calls int
	var lastPayload []byte
	err := ScanEvents(strings.NewReader(body), func(payload []byte, decodeErr error) error {
		calls++
		if decodeErr != nil {
			return nil // logged and skipped, per SPEC_FULL.md §7 DecodeError
		}
		lastPayload = payload
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("onEvent called %d times, want 2", calls)
	}
	if string(lastPayload) != "ok" {
		t.Errorf("lastPayload = %q, want ok", lastPayload)
	}
}

func TestScanEvents_CallbackErrorAbortsScan(t *testing.T) {
	body := "data: " + base64.RawURLEncoding.EncodeToString([]byte("a")) + "\n\n" +
		"data: " + base64.RawURLEncoding.EncodeToString([]byte("b")) + "\n\n"

	boom := errors.New("downstream disconnected")
	calls := 0
	err := ScanEvents(strings.NewReader(body), func(payload []byte, decodeErr error) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Fatalf("onEvent called %d times, want 1 (scan should abort)", calls)
	}
}
