// Package state holds BridgeState, the gateway's single piece of
// process-wide mutable state.
package state

import (
	"sync"

	"github.com/google/uuid"
)

// BridgeState tracks the conversation the bridge has established with
// upstream plus the two lazily-initialized message IDs used for the
// preamble message. It is explicitly owned and passed through handlers
// rather than held as a package-level singleton (SPEC_FULL.md §9).
type BridgeState struct {
	mu sync.Mutex

	conversationID  string
	baselineTaskID  string
	toolCallID      string
	toolMessageID   string
}

// New returns an empty BridgeState.
func New() *BridgeState {
	return &BridgeState{}
}

// ConversationID returns the established conversation id, or "" if none.
func (s *BridgeState) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// BaselineTaskID returns the baseline task id, or "" if none.
func (s *BridgeState) BaselineTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baselineTaskID
}

// UpdateFromUpstream sets conversationID/baselineTaskID from an upstream
// response, keeping the prior value when the new one is empty.
func (s *BridgeState) UpdateFromUpstream(conversationID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != "" {
		s.conversationID = conversationID
	}
	if taskID != "" {
		s.baselineTaskID = taskID
	}
}

// EnsureBaselineTaskID returns the baseline task id, minting and storing a
// fresh UUID the first time it is needed.
func (s *BridgeState) EnsureBaselineTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baselineTaskID == "" {
		s.baselineTaskID = uuid.NewString()
	}
	return s.baselineTaskID
}

// EnsureToolIDs lazily initializes and returns the stable
// tool_call_id/tool_message_id pair used by the preamble message
// (SPEC_FULL.md §3, §4.3). First caller wins; stable for process lifetime.
func (s *BridgeState) EnsureToolIDs() (toolCallID, toolMessageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolCallID == "" {
		s.toolCallID = uuid.NewString()
	}
	if s.toolMessageID == "" {
		s.toolMessageID = uuid.NewString()
	}
	return s.toolCallID, s.toolMessageID
}

// Initialized reports whether warmup has already established a conversation.
func (s *BridgeState) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID != ""
}
