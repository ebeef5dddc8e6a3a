// Package warpwire is the dynamic protobuf runtime: it compiles the
// upstream's .proto descriptors at startup without a protoc subprocess,
// builds/parses wire messages from plain Go maps, and decodes the opaque
// server_message_data sub-message carried in tool_call.server.payload.
package warpwire

import (
	"encoding/base64"
	"fmt"
	"time"
)

// ServerMessageData is the decoded shape of a tool_call.server.payload
// value: a hand-rolled 2-field protobuf fragment (1=uuid string,
// 3=embedded Timestamp{1:seconds,2:nanos}), grounded on
// original_source/warp2protobuf/core/server_message_data.py.
type ServerMessageData struct {
	UUID       string
	Seconds    int64
	HasSecs    bool
	Nanos      int64
	HasNanos   bool
	ISOUTC     string
	ISONewYork string
}

// Kind classifies which fields were present, matching the original's
// UUID_ONLY / TIMESTAMP_ONLY / UUID_AND_TIMESTAMP / UNKNOWN.
func (d ServerMessageData) Kind() string {
	switch {
	case d.UUID != "" && (d.HasSecs || d.HasNanos):
		return "UUID_AND_TIMESTAMP"
	case d.UUID != "":
		return "UUID_ONLY"
	case d.HasSecs || d.HasNanos:
		return "TIMESTAMP_ONLY"
	default:
		return "UNKNOWN"
	}
}

// Time returns the decoded timestamp in UTC, if the fragment carried one.
func (d ServerMessageData) Time() (time.Time, bool) {
	if !d.HasSecs && !d.HasNanos {
		return time.Time{}, false
	}
	return time.Unix(d.Seconds, d.Nanos).UTC(), true
}

// DecodeServerMessageData parses a Base64URL-without-padding payload into
// its uuid/timestamp fields. No descriptor is used: the fragment's wire
// shape is fixed and narrow enough to hand-decode directly.
func DecodeServerMessageData(b64url string) (ServerMessageData, error) {
	raw, err := b64urlDecodePadded(b64url)
	if err != nil {
		return ServerMessageData{}, fmt.Errorf("warpwire: base64url decode failed: %w", err)
	}

	var out ServerMessageData
	i := 0
	for i < len(raw) {
		key, next, err := readVarint(raw, i)
		if err != nil {
			return ServerMessageData{}, err
		}
		i = next
		fieldNo := key >> 3
		wireType := key & 0x07

		switch wireType {
		case 2: // length-delimited
			ln, next, err := readVarint(raw, i)
			if err != nil {
				return ServerMessageData{}, err
			}
			i = next
			if i+int(ln) > len(raw) {
				return ServerMessageData{}, fmt.Errorf("warpwire: length-delimited field %d overruns buffer", fieldNo)
			}
			data := raw[i : i+int(ln)]
			i += int(ln)
			switch fieldNo {
			case 1:
				out.UUID = string(data)
			case 3:
				seconds, hasSecs, nanos, hasNanos, err := decodeTimestamp(data)
				if err != nil {
					return ServerMessageData{}, err
				}
				if hasSecs {
					out.Seconds = seconds
					out.HasSecs = true
				}
				if hasNanos {
					out.Nanos = nanos
					out.HasNanos = true
				}
			}
		case 0: // varint
			_, next, err := readVarint(raw, i)
			if err != nil {
				return ServerMessageData{}, err
			}
			i = next
		case 1: // fixed64
			i += 8
		case 5: // fixed32
			i += 4
		default:
			i = len(raw)
		}
	}
	out.applyDerivedTimestamps()
	return out, nil
}

// applyDerivedTimestamps fills ISOUTC/ISONewYork once seconds are known,
// matching decode_server_message_data's iso_utc/iso_ny computation: both
// are derived only when seconds is present (nanos alone does not trigger
// it), with nanos truncated to microseconds.
func (d *ServerMessageData) applyDerivedTimestamps() {
	if !d.HasSecs {
		return
	}
	micros := d.Nanos / 1000
	t := time.Unix(d.Seconds, 0).UTC().Add(time.Duration(micros) * time.Microsecond)
	d.ISOUTC = t.Format("2006-01-02T15:04:05.999999Z")

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return
	}
	d.ISONewYork = t.In(loc).Format("2006-01-02T15:04:05.999999-07:00")
}

// EncodeServerMessageData builds the Base64URL-without-padding payload
// for a (uuid, timestamp) pair. Either component may be omitted by
// passing hasSecs=false && hasNanos=false, or uuid=="".
func EncodeServerMessageData(uuid string, seconds int64, hasSecs bool, nanos int64, hasNanos bool) string {
	var parts []byte
	if uuid != "" {
		parts = append(parts, makeKey(1, 2)...)
		b := []byte(uuid)
		parts = append(parts, writeVarint(uint64(len(b)))...)
		parts = append(parts, b...)
	}
	if hasSecs || hasNanos {
		ts := encodeTimestamp(seconds, hasSecs, nanos, hasNanos)
		parts = append(parts, makeKey(3, 2)...)
		parts = append(parts, writeVarint(uint64(len(ts)))...)
		parts = append(parts, ts...)
	}
	return base64.RawURLEncoding.EncodeToString(parts)
}

func decodeTimestamp(buf []byte) (seconds int64, hasSecs bool, nanos int64, hasNanos bool, err error) {
	i := 0
	for i < len(buf) {
		key, next, e := readVarint(buf, i)
		if e != nil {
			return 0, false, 0, false, e
		}
		i = next
		fieldNo := key >> 3
		wireType := key & 0x07
		switch wireType {
		case 0:
			val, next, e := readVarint(buf, i)
			if e != nil {
				return 0, false, 0, false, e
			}
			i = next
			switch fieldNo {
			case 1:
				seconds, hasSecs = int64(val), true
			case 2:
				nanos, hasNanos = int64(val), true
			}
		case 2:
			ln, next, e := readVarint(buf, i)
			if e != nil {
				return 0, false, 0, false, e
			}
			i = next + int(ln)
		case 1:
			i += 8
		case 5:
			i += 4
		default:
			return seconds, hasSecs, nanos, hasNanos, nil
		}
	}
	return seconds, hasSecs, nanos, hasNanos, nil
}

func encodeTimestamp(seconds int64, hasSecs bool, nanos int64, hasNanos bool) []byte {
	var out []byte
	if hasSecs {
		out = append(out, makeKey(1, 0)...)
		out = append(out, writeVarint(uint64(seconds))...)
	}
	if hasNanos {
		out = append(out, makeKey(2, 0)...)
		out = append(out, writeVarint(uint64(nanos))...)
	}
	return out
}

func makeKey(fieldNo, wireType int) []byte {
	return writeVarint(uint64((fieldNo << 3) | wireType))
}

func writeVarint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func readVarint(buf []byte, i int) (val uint64, next int, err error) {
	shift := uint(0)
	for i < len(buf) {
		b := buf[i]
		i++
		val |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return val, i, nil
		}
		shift += 7
		if shift > 63 {
			break
		}
	}
	return 0, 0, fmt.Errorf("warpwire: invalid varint")
}

// isServerMessageDataKey reports whether a field or dict key name is the
// conventional server_message_data marker, matched in both its wire
// snake_case and its JSON camelCase spelling.
func isServerMessageDataKey(name string) bool {
	return name == "server_message_data" || name == "serverMessageData"
}

// serverMessageDataToDict decodes a server_message_data payload string into
// its structured dict form, grounded on
// original_source/warp2protobuf/core/server_message_data.py's
// decode_server_message_data.
func serverMessageDataToDict(b64url string) (map[string]any, bool) {
	d, err := DecodeServerMessageData(b64url)
	if err != nil {
		return nil, false
	}
	out := map[string]any{
		"uuid": d.UUID,
		"type": d.Kind(),
	}
	if d.HasSecs {
		out["seconds"] = d.Seconds
	}
	if d.HasNanos {
		out["nanos"] = d.Nanos
	}
	if d.ISOUTC != "" {
		out["iso_utc"] = d.ISOUTC
	}
	if d.ISONewYork != "" {
		out["iso_ny"] = d.ISONewYork
	}
	return out, true
}

// dictToServerMessageData encodes a {uuid, seconds, nanos} dict back into
// its Base64URL payload form, the inverse of serverMessageDataToDict.
func dictToServerMessageData(v map[string]any) (string, bool) {
	uuid, _ := v["uuid"].(string)
	seconds, hasSecs := toOptionalInt64(v["seconds"])
	nanos, hasNanos := toOptionalInt64(v["nanos"])
	if uuid == "" && !hasSecs && !hasNanos {
		return "", false
	}
	return EncodeServerMessageData(uuid, seconds, hasSecs, nanos, hasNanos), true
}

func toOptionalInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}

func b64urlDecodePadded(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
