package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tradefork/engine/pkg/models"
)

var (
	fencedJSONPattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	lineCommentPattern  = regexp.MustCompile(`(?m)^\s*//.*$`)
	trailingCommaRegexp = regexp.MustCompile(`,\s*([}\]])`)
	metaBlockPattern    = regexp.MustCompile(`(?s)<!--\s*FORKER_META\s*(.*?)\s*FORKER_META\s*-->`)
	htmlCommentPattern  = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// FallbackReply stands in when a model reply has no visible text
const FallbackReply = "응답을 생성하는데 문제가 있었어. 다시 말해줘!"

// ExtractJSON pulls a JSON object out of a model response. Models wrap
// objects in code fences and occasionally emit line comments or
// trailing commas; all three are tolerated.
func ExtractJSON(text string) (models.JSONMap, error) {
	candidate := ""

	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in response")
		}
		candidate = text[start : end+1]
	}

	candidate = lineCommentPattern.ReplaceAllString(candidate, "")
	candidate = trailingCommaRegexp.ReplaceAllString(candidate, "$1")

	var out models.JSONMap
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from response: %w", err)
	}
	return out, nil
}

// SplitMeta separates the user-visible reply from the trailing
// `<!-- FORKER_META {...} FORKER_META -->` block. With a block, the
// visible text is everything before it; without one, the whole reply
// with HTML comments stripped. Malformed metadata yields a nil map,
// and an empty reply becomes FallbackReply.
func SplitMeta(text string) (string, models.JSONMap) {
	var visible string
	var meta models.JSONMap

	if m := metaBlockPattern.FindStringSubmatchIndex(text); m != nil {
		visible = strings.TrimSpace(text[:m[0]])

		raw := lineCommentPattern.ReplaceAllString(text[m[2]:m[3]], "")
		raw = trailingCommaRegexp.ReplaceAllString(raw, "$1")
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			meta = nil
		}
	} else {
		visible = strings.TrimSpace(htmlCommentPattern.ReplaceAllString(text, ""))
	}

	if visible == "" {
		visible = strings.TrimSpace(htmlCommentPattern.ReplaceAllString(text, ""))
		if visible == "" {
			visible = FallbackReply
		}
	}
	return visible, meta
}
