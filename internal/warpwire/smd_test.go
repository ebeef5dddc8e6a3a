package warpwire

import "testing"

func TestServerMessageData_RoundTrip(t *testing.T) {
	encoded := EncodeServerMessageData("5b48d359-0715-479e-a158-0a00f2dfea36", 1700000000, true, 123000000, true)

	got, err := DecodeServerMessageData(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got.UUID != "5b48d359-0715-479e-a158-0a00f2dfea36" {
		t.Errorf("uuid = %q", got.UUID)
	}
	if !got.HasSecs || got.Seconds != 1700000000 {
		t.Errorf("seconds = %d (has=%v), want 1700000000", got.Seconds, got.HasSecs)
	}
	if !got.HasNanos || got.Nanos != 123000000 {
		t.Errorf("nanos = %d (has=%v), want 123000000", got.Nanos, got.HasNanos)
	}
	if got.Kind() != "UUID_AND_TIMESTAMP" {
		t.Errorf("Kind() = %q, want UUID_AND_TIMESTAMP", got.Kind())
	}
}

func TestServerMessageData_FixedPreamblePayloadDecodesWithoutError(t *testing.T) {
	// "IgIQAQ==" is the invariant preamble payload (SPEC_FULL.md §9): an
	// opaque fixed byte constant carried verbatim, not a uuid/timestamp
	// fragment. The decoder must not error on unrecognized field numbers.
	got, err := DecodeServerMessageData("IgIQAQ==")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != "UNKNOWN" {
		t.Errorf("Kind() = %q, want UNKNOWN (no uuid/timestamp fields present)", got.Kind())
	}
}

func TestServerMessageData_UUIDOnly(t *testing.T) {
	encoded := EncodeServerMessageData("abc-123", 0, false, 0, false)
	got, err := DecodeServerMessageData(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != "UUID_ONLY" {
		t.Errorf("Kind() = %q, want UUID_ONLY", got.Kind())
	}
	if got.UUID != "abc-123" {
		t.Errorf("uuid = %q, want abc-123", got.UUID)
	}
}

func TestServerMessageData_DerivesISOTimestampsWhenSecondsPresent(t *testing.T) {
	encoded := EncodeServerMessageData("", 1700000000, true, 123000000, true)
	got, err := DecodeServerMessageData(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got.ISOUTC != "2023-11-14T22:13:20.123Z" {
		t.Errorf("ISOUTC = %q, want 2023-11-14T22:13:20.123Z", got.ISOUTC)
	}
	if got.ISONewYork == "" {
		t.Error("expected ISONewYork to be populated")
	}
}

func TestServerMessageData_NanosAloneDoesNotDeriveISOTimestamps(t *testing.T) {
	encoded := EncodeServerMessageData("", 0, false, 123000000, true)
	got, err := DecodeServerMessageData(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got.ISOUTC != "" || got.ISONewYork != "" {
		t.Errorf("ISOUTC/ISONewYork = %q/%q, want both empty without seconds", got.ISOUTC, got.ISONewYork)
	}
}

func TestServerMessageData_RejectsGarbage(t *testing.T) {
	if _, err := DecodeServerMessageData("%%%not-base64%%%"); err == nil {
		t.Error("expected an error decoding invalid base64url")
	}
}
