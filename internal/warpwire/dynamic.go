package warpwire

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// FillMessage populates msg's fields from data, a plain JSON-shaped map,
// without any generated accessor code. Unknown keys are ignored and
// type-mismatched scalars are skipped, mirroring
// original_source/warp2protobuf/core/protobuf_utils.py's
// _populate_protobuf_from_dict (it warns and continues rather than
// failing the whole message).
func FillMessage(msg protoreflect.Message, data map[string]any) error {
	md := msg.Descriptor()
	for key, value := range data {
		fd := md.Fields().ByName(protoreflect.Name(key))
		if fd == nil {
			continue
		}
		if err := setField(msg, fd, value); err != nil {
			return fmt.Errorf("warpwire: field %s.%s: %w", md.FullName(), key, err)
		}
	}
	return nil
}

func setField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, value any) error {
	if fd.Kind() == protoreflect.StringKind && isServerMessageDataKey(string(fd.Name())) {
		if vm, ok := value.(map[string]any); ok {
			if encoded, ok := dictToServerMessageData(vm); ok {
				msg.Set(fd, protoreflect.ValueOfString(encoded))
				return nil
			}
		}
	}
	switch {
	case fd.IsMap():
		return setMapField(msg, fd, value)
	case fd.IsList():
		return setListField(msg, fd, value)
	case fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind:
		return setMessageField(msg, fd, value)
	case fd.Kind() == protoreflect.EnumKind:
		msg.Set(fd, protoreflect.ValueOfEnum(resolveEnum(fd.Enum(), value)))
		return nil
	default:
		v, err := scalarValue(fd.Kind(), value)
		if err != nil {
			return nil
		}
		msg.Set(fd, v)
		return nil
	}
}

func setMessageField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, value any) error {
	if fd.Message() != nil && fd.Message().FullName() == "google.protobuf.Struct" {
		vm, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		sub := msg.Mutable(fd).Message()
		return fillStruct(sub, vm)
	}

	sub := msg.Mutable(fd).Message()
	vm, ok := value.(map[string]any)
	if !ok {
		// A non-object value against a message field (e.g. a bare flag) only
		// marks the field present; Mutable already did that.
		return nil
	}
	return FillMessage(sub, vm)
}

func setMapField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, value any) error {
	valueMap, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	mp := msg.Mutable(fd).Map()
	valFd := fd.MapValue()

	for k, v := range valueMap {
		key := protoreflect.ValueOfString(k).MapKey()
		if isServerMessageDataKey(k) && valFd.Kind() == protoreflect.StringKind {
			if vm, ok := v.(map[string]any); ok {
				if encoded, ok := dictToServerMessageData(vm); ok {
					v = encoded
				}
			}
		}
		if valFd.Kind() == protoreflect.MessageKind {
			nv := dynamicpb.NewMessage(valFd.Message())
			if valFd.Message().FullName() == "google.protobuf.Value" {
				if err := fillValue(nv, v); err != nil {
					continue
				}
			} else if vm, ok := v.(map[string]any); ok {
				if err := FillMessage(nv, vm); err != nil {
					continue
				}
			}
			mp.Set(key, protoreflect.ValueOfMessage(nv))
			continue
		}
		sv, err := scalarValue(valFd.Kind(), v)
		if err != nil {
			continue
		}
		mp.Set(key, sv)
	}
	return nil
}

func setListField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, value any) error {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	list := msg.Mutable(fd).List()

	if fd.Kind() == protoreflect.EnumKind {
		for _, item := range items {
			list.Append(protoreflect.ValueOfEnum(resolveEnum(fd.Enum(), item)))
		}
		return nil
	}
	if fd.Kind() == protoreflect.MessageKind {
		for _, item := range items {
			nv := dynamicpb.NewMessage(fd.Message())
			if vm, ok := item.(map[string]any); ok {
				if err := FillMessage(nv, vm); err != nil {
					continue
				}
			}
			list.Append(protoreflect.ValueOfMessage(nv))
		}
		return nil
	}
	for _, item := range items {
		sv, err := scalarValue(fd.Kind(), item)
		if err != nil {
			continue
		}
		list.Append(sv)
	}
	return nil
}

func resolveEnum(enumDesc protoreflect.EnumDescriptor, v any) protoreflect.EnumNumber {
	switch t := v.(type) {
	case string:
		if val := enumDesc.Values().ByName(protoreflect.Name(t)); val != nil {
			return val.Number()
		}
		if n, err := strconv.Atoi(t); err == nil {
			return protoreflect.EnumNumber(n)
		}
		return 0
	case float64:
		return protoreflect.EnumNumber(int32(t))
	case int:
		return protoreflect.EnumNumber(int32(t))
	default:
		return 0
	}
}

func scalarValue(kind protoreflect.Kind, v any) (protoreflect.Value, error) {
	switch kind {
	case protoreflect.BoolKind:
		b, ok := v.(bool)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected bool, got %T", v)
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.StringKind:
		s, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected string, got %T", v)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		s, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected base64 string for bytes, got %T", v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBytes(b), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := toInt64(v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := toInt64(v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(n), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := toInt64(v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint32(uint32(n)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, err := toInt64(v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint64(uint64(n)), nil
	case protoreflect.FloatKind:
		f, ok := v.(float64)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected number, got %T", v)
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil
	case protoreflect.DoubleKind:
		f, ok := v.(float64)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("expected number, got %T", v)
		}
		return protoreflect.ValueOfFloat64(f), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported scalar kind %v", kind)
	}
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", v)
	}
}

// fillValue populates a dynamic google.protobuf.Value message from a Go
// JSON-shaped value, without any generated structpb types. Grounded on
// _fill_google_value_dynamic.
func fillValue(msg protoreflect.Message, v any) error {
	md := msg.Descriptor()
	switch t := v.(type) {
	case nil:
		msg.Set(md.Fields().ByName("null_value"), protoreflect.ValueOfEnum(0))
	case bool:
		msg.Set(md.Fields().ByName("bool_value"), protoreflect.ValueOfBool(t))
	case float64:
		msg.Set(md.Fields().ByName("number_value"), protoreflect.ValueOfFloat64(t))
	case int:
		msg.Set(md.Fields().ByName("number_value"), protoreflect.ValueOfFloat64(float64(t)))
	case string:
		msg.Set(md.Fields().ByName("string_value"), protoreflect.ValueOfString(t))
	case map[string]any:
		fd := md.Fields().ByName("struct_value")
		sub := msg.Mutable(fd).Message()
		return fillStruct(sub, t)
	case []any:
		fd := md.Fields().ByName("list_value")
		listMsg := msg.Mutable(fd).Message()
		valuesFd := listMsg.Descriptor().Fields().ByName("values")
		list := listMsg.Mutable(valuesFd).List()
		for _, item := range t {
			valueDesc := valuesFd.Message()
			nv := dynamicpb.NewMessage(valueDesc)
			if err := fillValue(nv, item); err != nil {
				continue
			}
			list.Append(protoreflect.ValueOfMessage(nv))
		}
	default:
		msg.Set(md.Fields().ByName("string_value"), protoreflect.ValueOfString(fmt.Sprint(t)))
	}
	return nil
}

// fillStruct populates a dynamic google.protobuf.Struct message's
// fields map. Grounded on _fill_google_struct_dynamic.
func fillStruct(msg protoreflect.Message, data map[string]any) error {
	fd := msg.Descriptor().Fields().ByName("fields")
	mp := msg.Mutable(fd).Map()
	valueDesc := fd.MapValue().Message()
	for k, v := range data {
		if isServerMessageDataKey(k) {
			if vm, ok := v.(map[string]any); ok {
				if encoded, ok := dictToServerMessageData(vm); ok {
					v = encoded
				}
			}
		}
		nv := dynamicpb.NewMessage(valueDesc)
		if err := fillValue(nv, v); err != nil {
			continue
		}
		mp.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfMessage(nv))
	}
	return nil
}

// ToMap converts msg into a plain JSON-shaped map, the inverse of
// FillMessage. Grounded on protobuf_to_dict's use of MessageToDict with
// preserving_proto_field_name=True.
func ToMap(msg protoreflect.Message) map[string]any {
	out := map[string]any{}
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		name := string(fd.Name())
		av := fieldToAny(fd, v)
		if isServerMessageDataKey(name) {
			if s, ok := av.(string); ok {
				if decoded, ok := serverMessageDataToDict(s); ok {
					av = decoded
				}
			}
		}
		out[name] = av
		return true
	})
	return out
}

func fieldToAny(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch {
	case fd.IsMap():
		m := v.Map()
		result := make(map[string]any, m.Len())
		valFd := fd.MapValue()
		m.Range(func(mk protoreflect.MapKey, mv protoreflect.Value) bool {
			av := scalarOrMessageToAny(valFd, mv)
			if isServerMessageDataKey(mk.String()) {
				if s, ok := av.(string); ok {
					if decoded, ok := serverMessageDataToDict(s); ok {
						av = decoded
					}
				}
			}
			result[mk.String()] = av
			return true
		})
		return result
	case fd.IsList():
		l := v.List()
		arr := make([]any, l.Len())
		for i := 0; i < l.Len(); i++ {
			arr[i] = scalarOrMessageToAny(fd, l.Get(i))
		}
		return arr
	default:
		return scalarOrMessageToAny(fd, v)
	}
}

func scalarOrMessageToAny(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		sub := v.Message()
		switch fd.Message().FullName() {
		case "google.protobuf.Struct":
			return structToAny(sub)
		case "google.protobuf.Value":
			return valueToAny(sub)
		default:
			return ToMap(sub)
		}
	case protoreflect.EnumKind:
		num := v.Enum()
		if evd := fd.Enum().Values().ByNumber(num); evd != nil {
			return string(evd.Name())
		}
		return int32(num)
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	default:
		return v.Interface()
	}
}

func valueToAny(msg protoreflect.Message) any {
	md := msg.Descriptor()
	if has(msg, md, "bool_value") {
		return msg.Get(md.Fields().ByName("bool_value")).Bool()
	}
	if has(msg, md, "number_value") {
		return msg.Get(md.Fields().ByName("number_value")).Float()
	}
	if has(msg, md, "string_value") {
		return msg.Get(md.Fields().ByName("string_value")).String()
	}
	if has(msg, md, "struct_value") {
		return structToAny(msg.Get(md.Fields().ByName("struct_value")).Message())
	}
	if has(msg, md, "list_value") {
		lv := msg.Get(md.Fields().ByName("list_value")).Message()
		valuesFd := lv.Descriptor().Fields().ByName("values")
		list := lv.Get(valuesFd).List()
		arr := make([]any, list.Len())
		for i := 0; i < list.Len(); i++ {
			arr[i] = valueToAny(list.Get(i).Message())
		}
		return arr
	}
	return nil
}

func structToAny(msg protoreflect.Message) map[string]any {
	fd := msg.Descriptor().Fields().ByName("fields")
	m := msg.Get(fd).Map()
	out := make(map[string]any, m.Len())
	m.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		av := valueToAny(v.Message())
		if isServerMessageDataKey(k.String()) {
			if s, ok := av.(string); ok {
				if decoded, ok := serverMessageDataToDict(s); ok {
					av = decoded
				}
			}
		}
		out[k.String()] = av
		return true
	})
	return out
}

func has(msg protoreflect.Message, md protoreflect.MessageDescriptor, name protoreflect.Name) bool {
	fd := md.Fields().ByName(name)
	return fd != nil && msg.Has(fd)
}
