package ai

import (
	"testing"
)

func TestExtractJSONFenced(t *testing.T) {
	text := "Here is the verdict:\n```json\n{\"direction\": \"long\", \"confidence\": 0.7}\n```\nDone."

	out, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if dir, _ := out.String("direction"); dir != "long" {
		t.Errorf("expected direction=long, got %q", dir)
	}
	if conf, _ := out.Float("confidence"); conf != 0.7 {
		t.Errorf("expected confidence=0.7, got %v", conf)
	}
}

func TestExtractJSONBare(t *testing.T) {
	out, err := ExtractJSON(`판단 결과: {"verdict": "YES"} 이상입니다.`)
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if v, _ := out.String("verdict"); v != "YES" {
		t.Errorf("expected verdict=YES, got %q", v)
	}
}

func TestExtractJSONTolerance(t *testing.T) {
	text := "```json\n{\n  // model commentary\n  \"a\": 1,\n  \"b\": [1, 2,],\n}\n```"

	out, err := ExtractJSON(text)
	if err != nil {
		t.Fatalf("expected tolerant parse, got: %v", err)
	}
	if a, _ := out.Float("a"); a != 1 {
		t.Errorf("expected a=1, got %v", a)
	}
}

func TestExtractJSONMissing(t *testing.T) {
	if _, err := ExtractJSON("no structured content here"); err == nil {
		t.Error("expected error when no JSON object present")
	}
}

func TestSplitMeta(t *testing.T) {
	text := "BTC 지금 과열 구간이야.\n\n<!-- FORKER_META {\"streams\": [\"price:BTC\"], \"confidence\": 0.6} FORKER_META -->"

	visible, meta := SplitMeta(text)
	if visible != "BTC 지금 과열 구간이야." {
		t.Errorf("unexpected visible text: %q", visible)
	}
	if meta == nil {
		t.Fatal("expected meta map")
	}
	if conf, _ := meta.Float("confidence"); conf != 0.6 {
		t.Errorf("expected confidence=0.6, got %v", conf)
	}
}

func TestSplitMetaMultilineBlock(t *testing.T) {
	text := "지금은 관망이 맞아 보여.\n<!--FORKER_META\n{\n  \"intent\": \"general\",\n  \"should_save_episode\": false,\n}\nFORKER_META-->"

	visible, meta := SplitMeta(text)
	if visible != "지금은 관망이 맞아 보여." {
		t.Errorf("unexpected visible text: %q", visible)
	}
	if meta == nil {
		t.Fatal("expected meta map")
	}
	if intent, _ := meta.String("intent"); intent != "general" {
		t.Errorf("expected intent=general, got %q", intent)
	}
}

func TestSplitMetaAbsent(t *testing.T) {
	visible, meta := SplitMeta("그냥 일반 답변")
	if visible != "그냥 일반 답변" || meta != nil {
		t.Errorf("expected passthrough, got %q / %v", visible, meta)
	}

	// Stray HTML comments never reach the user
	visible, meta = SplitMeta("답변이야 <!-- scratch note -->")
	if visible != "답변이야" || meta != nil {
		t.Errorf("expected comment stripped, got %q / %v", visible, meta)
	}
}

func TestSplitMetaMalformed(t *testing.T) {
	visible, meta := SplitMeta("답변 <!-- FORKER_META {broken FORKER_META -->")
	if meta != nil {
		t.Errorf("expected nil meta for malformed block, got %v", meta)
	}
	if visible != "답변" {
		t.Errorf("expected visible text preserved, got %q", visible)
	}
}

func TestSplitMetaEmptyVisible(t *testing.T) {
	visible, meta := SplitMeta("<!--FORKER_META\n{\"intent\": \"general\"}\nFORKER_META-->")
	if visible != FallbackReply {
		t.Errorf("expected fallback reply, got %q", visible)
	}
	if meta == nil {
		t.Fatal("expected meta map")
	}
}
