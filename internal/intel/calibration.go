package intel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tradefork/engine/pkg/models"
)

// CalibrationEntry maps one of the user's expressions to the numeric
// value they actually meant
type CalibrationEntry struct {
	Expression string
	Value      float64
}

// MergeCalibrations flattens calibration maps, newest first, keeping
// the most recent value per expression
func MergeCalibrations(maps []models.JSONMap) []CalibrationEntry {
	seen := make(map[string]bool)
	var entries []CalibrationEntry
	for _, m := range maps {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if seen[k] {
				continue
			}
			value, ok := toFloat(m[k])
			if !ok {
				continue
			}
			seen[k] = true
			entries = append(entries, CalibrationEntry{Expression: k, Value: value})
		}
	}
	return entries
}

// FormatCalibrations renders the calibration map as prompt lines
func FormatCalibrations(entries []CalibrationEntry) string {
	if len(entries) == 0 {
		return "캘리브레이션 데이터 없음"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("\"%s\" = %+g%%", e.Expression, e.Value)
	}
	return strings.Join(lines, "\n")
}

// FormatStyleContext renders the user's stated style plus the tags
// accumulated from recent episodes
func FormatStyleContext(user *models.User, tagMaps []models.JSONMap) string {
	var lines []string

	if len(user.StyleParsed) > 0 {
		keys := make([]string, 0, len(user.StyleParsed))
		for k := range user.StyleParsed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %v", k, user.StyleParsed[k]))
		}
	}

	if user.StyleRaw != nil && *user.StyleRaw != "" {
		lines = append(lines, "원본 스타일: "+truncateRunes(*user.StyleRaw, 300))
	}

	if tags := topStyleTags(tagMaps, 5); len(tags) > 0 {
		lines = append(lines, "스타일 태그: "+strings.Join(tags, ", "))
	}

	if len(lines) == 0 {
		return "스타일 정보 없음"
	}
	return strings.Join(lines, "\n")
}

// topStyleTags counts key=value pairs across tag maps and keeps the
// most frequent
func topStyleTags(tagMaps []models.JSONMap, limit int) []string {
	counts := make(map[string]int)
	order := make(map[string]int)
	for _, m := range tagMaps {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tag := fmt.Sprintf("%s=%v", k, m[k])
			if _, seen := counts[tag]; !seen {
				order[tag] = len(order)
			}
			counts[tag]++
		}
	}

	ranked := make([]string, 0, len(counts))
	for tag := range counts {
		ranked = append(ranked, tag)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return order[ranked[i]] < order[ranked[j]]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	tags := make([]string, len(ranked))
	for i, tag := range ranked {
		tags[i] = fmt.Sprintf("%s(%d회)", tag, counts[tag])
	}
	return tags
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
