package server

import (
	"encoding/json"
	"testing"
)

func TestNegotiationFirstMessageOnly(t *testing.T) {
	sess := newSession("s1", nil)

	first := Message{Type: TypeFeatureFlags, Data: json.RawMessage(`{"supports_preview":true}`)}
	if !sess.observeMessage(first) {
		t.Fatal("first feature_flags message should negotiate")
	}

	features := sess.Features()
	if features["supports_preview"] != true {
		t.Errorf("negotiated features not recorded: %v", features)
	}

	second := Message{Type: TypeFeatureFlags, Data: json.RawMessage(`{"other":1}`)}
	if sess.observeMessage(second) {
		t.Error("second feature_flags message should be ignored")
	}
	if _, ok := sess.Features()["other"]; ok {
		t.Error("ignored negotiation must not change the feature set")
	}
}

func TestNegotiationSkippedByNonNegotiatingFirstMessage(t *testing.T) {
	sess := newSession("s1", nil)

	if sess.observeMessage(Message{Type: TypePing}) {
		t.Fatal("ping should never negotiate")
	}

	// The negotiation window is closed after any first message.
	late := Message{Type: TypeFeatureFlags, Data: json.RawMessage(`{"x":1}`)}
	if sess.observeMessage(late) {
		t.Error("feature_flags after a non-negotiating first message should be ignored")
	}
	if len(sess.Features()) != 0 {
		t.Errorf("expected empty feature set, got %v", sess.Features())
	}
}

func TestMalformedNegotiationIgnored(t *testing.T) {
	sess := newSession("s1", nil)

	bad := Message{Type: TypeFeatureFlags, Data: json.RawMessage(`[1,2]`)}
	if sess.observeMessage(bad) {
		t.Error("malformed negotiation payload should be ignored")
	}

	// The window stays closed afterwards.
	good := Message{Type: TypeFeatureFlags, Data: json.RawMessage(`{"x":1}`)}
	if sess.observeMessage(good) {
		t.Error("negotiation window should be closed after the first message")
	}
}
