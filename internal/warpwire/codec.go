package warpwire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// DictToProtobufBytes builds a message of messageType from data and
// serializes it to wire bytes. Grounded on
// protobuf_utils.dict_to_protobuf_bytes.
func (rt *Runtime) DictToProtobufBytes(messageType string, data map[string]any) ([]byte, error) {
	msg, err := rt.NewMessage(messageType)
	if err != nil {
		return nil, err
	}
	if err := FillMessage(msg.ProtoReflect(), data); err != nil {
		return nil, fmt.Errorf("warpwire: encoding %s: %w", messageType, err)
	}
	return proto.Marshal(msg)
}

// ProtobufToDict parses wire bytes of messageType into a plain map.
// Grounded on protobuf_utils.protobuf_to_dict.
func (rt *Runtime) ProtobufToDict(raw []byte, messageType string) (map[string]any, error) {
	msg, err := rt.NewMessage(messageType)
	if err != nil {
		return nil, err
	}
	if err := proto.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("warpwire: decoding %s: %w", messageType, err)
	}
	return ToMap(msg.ProtoReflect()), nil
}
