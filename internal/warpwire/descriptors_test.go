package warpwire

import "testing"

// The canonical-name direct-hit path is covered by internal/bridgeapi's
// tests, whose fixture carries "warp.multi_agent.v1.Request". These cover
// the heuristic fallback used when a descriptor pool lacks it.

func TestResolveRequestType_HeuristicFallbackPicksChatTurnOverGreeting(t *testing.T) {
	rt, err := LoadDescriptors("testdata/heuristic")
	if err != nil {
		t.Fatalf("LoadDescriptors: %v", err)
	}
	if _, ok := rt.messages[canonicalRequestType]; ok {
		t.Fatal("fixture should not contain the canonical request type")
	}

	name, err := rt.ResolveRequestType()
	if err != nil {
		t.Fatalf("ResolveRequestType: %v", err)
	}
	if name != "warp.multi_agent.v1.ChatUserTurn" {
		t.Fatalf("name = %q, want ChatUserTurn", name)
	}
}

func TestScoreRequestCandidate_NameKeywordsAndFieldHintBothContribute(t *testing.T) {
	rt, err := LoadDescriptors("testdata/heuristic")
	if err != nil {
		t.Fatalf("LoadDescriptors: %v", err)
	}
	chatTurn := rt.messages["warp.multi_agent.v1.ChatUserTurn"]
	greeting := rt.messages["warp.multi_agent.v1.Greeting"]
	if chatTurn == nil || greeting == nil {
		t.Fatal("expected fixture messages not found in descriptor pool")
	}

	chatScore := scoreRequestCandidate("warp.multi_agent.v1.ChatUserTurn", chatTurn)
	greetingScore := scoreRequestCandidate("warp.multi_agent.v1.Greeting", greeting)
	if chatScore <= greetingScore {
		t.Fatalf("chatScore = %d, greetingScore = %d; want chatScore higher", chatScore, greetingScore)
	}
}
