package warpwire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Runtime holds the compiled descriptor set for the upstream's protocol
// and builds dynamic messages from it without any generated Go code.
// Grounded on original_source/warp2protobuf/core/protobuf.py's
// ensure_proto_runtime/_build_descset/_load_pool_from_descset, replacing
// its grpc_tools.protoc subprocess with a pure-Go .proto parser
// (github.com/jhump/protoreflect/desc/protoparse) per SPEC_FULL.md §4.14.
type Runtime struct {
	files     []protoreflect.FileDescriptor
	messages  map[string]protoreflect.MessageDescriptor
	allNames  []string
}

// essentialProtoFiles mirrors _find_proto_files' preferred file list: if
// present, these are compiled; otherwise every .proto under the directory
// is scanned, skipping known-problematic test fixtures.
var essentialProtoFiles = []string{
	"request.proto",
	"response.proto",
	"task.proto",
	"attachment.proto",
	"file_content.proto",
	"input_context.proto",
	"citations.proto",
}

var excludedProtoNamePatterns = []string{
	"unittest", "test", "sample_messages", "java_features",
	"legacy_features", "descriptor_test",
}

// LoadDescriptors compiles every .proto file under protoDir and indexes
// all message types (including nested ones) by fully-qualified name.
func LoadDescriptors(protoDir string) (*Runtime, error) {
	files, err := findProtoFiles(protoDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("warpwire: no .proto files found under %s", protoDir)
	}

	parser := protoparse.Parser{
		ImportPaths:           []string{protoDir},
		IncludeSourceCodeInfo: false,
	}
	relFiles := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(protoDir, f)
		if err != nil {
			rel = f
		}
		relFiles = append(relFiles, filepath.ToSlash(rel))
	}

	descs, err := parser.ParseFiles(relFiles...)
	if err != nil {
		return nil, fmt.Errorf("warpwire: parsing .proto files: %w", err)
	}

	rt := &Runtime{messages: make(map[string]protoreflect.MessageDescriptor)}
	for _, d := range descs {
		fdProto := d.AsFileDescriptorProto()
		fd, err := protodesc.NewFile(fdProto, nil)
		if err != nil {
			return nil, fmt.Errorf("warpwire: converting descriptor for %s: %w", d.GetName(), err)
		}
		rt.files = append(rt.files, fd)
		rt.indexMessages(fd.Messages())
	}

	return rt, nil
}

func (rt *Runtime) indexMessages(msgs protoreflect.MessageDescriptors) {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		rt.messages[string(md.FullName())] = md
		rt.allNames = append(rt.allNames, string(md.FullName()))
		rt.indexMessages(md.Messages())
	}
}

// MessageDescriptor looks up a compiled message type by fully-qualified
// name, e.g. "warp.multi_agent.v1.Request".
func (rt *Runtime) MessageDescriptor(fullName string) (protoreflect.MessageDescriptor, error) {
	md, ok := rt.messages[fullName]
	if !ok {
		return nil, fmt.Errorf("warpwire: unknown message type %q", fullName)
	}
	return md, nil
}

// NewMessage builds an empty dynamic message of the given type.
func (rt *Runtime) NewMessage(fullName string) (*dynamicpb.Message, error) {
	md, err := rt.MessageDescriptor(fullName)
	if err != nil {
		return nil, err
	}
	return dynamicpb.NewMessage(md), nil
}

// MessageTypeNames returns every compiled message's fully-qualified name.
func (rt *Runtime) MessageTypeNames() []string {
	return rt.allNames
}

// canonicalRequestType is the expected fully-qualified name of the
// top-level chat request message.
const canonicalRequestType = "warp.multi_agent.v1.Request"

// requestNameKeywords bias the heuristic fallback below toward messages
// that look like a top-level multi-agent chat request.
var requestNameKeywords = []string{"request", "multi_agent", "chat"}

// requestFieldHints bias the heuristic toward messages carrying a string
// field whose name looks like free-text chat input.
var requestFieldHints = []string{"query", "text", "content", "message", "prompt"}

// ResolveRequestType returns canonicalRequestType if the pool has it.
// Otherwise it ranks every compiled message by a heuristic combining
// name-keyword bias and the presence of a string field along a path with
// hint-word field names, and returns the highest-scoring candidate. This
// is a safety net for descriptor pools missing the canonical type;
// grounded on original_source/warp2protobuf/core/protobuf.py's
// get_request_schema() (SPEC_FULL.md §4.5).
func (rt *Runtime) ResolveRequestType() (string, error) {
	if _, ok := rt.messages[canonicalRequestType]; ok {
		return canonicalRequestType, nil
	}

	best := ""
	bestScore := -1
	for _, name := range rt.allNames {
		score := scoreRequestCandidate(name, rt.messages[name])
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	if best == "" {
		return "", fmt.Errorf("warpwire: no candidate request message found in descriptor pool")
	}
	return best, nil
}

func scoreRequestCandidate(name string, md protoreflect.MessageDescriptor) int {
	score := 0
	lower := strings.ToLower(name)
	for _, kw := range requestNameKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	if hasStringFieldHint(md, 0) {
		score += 2
	}
	return score
}

// hasStringFieldHint walks up to two levels of nested message fields
// looking for a string field whose name matches a hint word.
func hasStringFieldHint(md protoreflect.MessageDescriptor, depth int) bool {
	if md == nil || depth > 2 {
		return false
	}
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		name := strings.ToLower(string(fd.Name()))
		for _, hint := range requestFieldHints {
			if strings.Contains(name, hint) && fd.Kind() == protoreflect.StringKind {
				return true
			}
		}
		if fd.Kind() == protoreflect.MessageKind && !fd.IsList() && !fd.IsMap() {
			if hasStringFieldHint(fd.Message(), depth+1) {
				return true
			}
		}
	}
	return false
}

func findProtoFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var found []string
	for _, name := range essentialProtoFiles {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	if len(found) > 0 {
		return found, nil
	}

	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		if !strings.HasSuffix(strings.ToLower(path), ".proto") {
			return nil
		}
		lower := strings.ToLower(filepath.Base(path))
		for _, pattern := range excludedProtoNamePatterns {
			if strings.Contains(lower, pattern) {
				return nil
			}
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
