// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of a model response that may carry
// surrounding prose or markdown fencing. Tries a direct parse, then a
// fenced code block, then a balanced-brace scan.
func extractJSON(text string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &data); err == nil {
		return data, nil
	}

	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		if err := json.Unmarshal([]byte(match[1]), &data); err == nil {
			return data, nil
		}
	}

	if start := strings.Index(text, "{"); start != -1 {
		depth := 0
		for i := start; i < len(text); i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					if err := json.Unmarshal([]byte(text[start:i+1]), &data); err == nil {
						return data, nil
					}
					i = len(text)
				}
			}
		}
	}

	preview := text
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return nil, fmt.Errorf("no valid JSON found in response: %s", preview)
}

func intField(data map[string]any, key string) (int, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func categoryScores(data map[string]any, key string) (*CategoryScores, bool) {
	raw, ok := data[key].(map[string]any)
	if !ok {
		return nil, false
	}
	get := func(k string) int {
		v, _ := intField(raw, k)
		return v
	}
	return &CategoryScores{
		LogicalConsistency: get("logical_consistency"),
		Evidence:           get("evidence"),
		Persuasiveness:     get("persuasiveness"),
		Engagement:         get("engagement"),
	}, true
}

func (c *CategoryScores) total() int {
	return c.LogicalConsistency + c.Evidence + c.Persuasiveness + c.Engagement
}

// parseJudgment validates a judge response. Detailed responses carry
// per-category breakdowns whose sums become the totals; the legacy format
// carries pro_score and con_score directly.
func parseJudgment(response string) (*Judgment, error) {
	data, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	var proScore, conScore int
	proScores, okPro := categoryScores(data, "pro_scores")
	conScores, okCon := categoryScores(data, "con_scores")
	if okPro && okCon {
		proScore = proScores.total()
		conScore = conScores.total()
	} else {
		proScores, conScores = nil, nil
		var okP, okC bool
		proScore, okP = intField(data, "pro_score")
		conScore, okC = intField(data, "con_score")
		if !okP || !okC {
			return nil, fmt.Errorf("missing required score fields in judgment")
		}
	}

	if proScore < 0 || proScore > 100 {
		return nil, fmt.Errorf("pro_score must be 0-100, got %d", proScore)
	}
	if conScore < 0 || conScore > 100 {
		return nil, fmt.Errorf("con_score must be 0-100, got %d", conScore)
	}

	var winner string
	if raw, ok := data["winner"]; ok && raw != nil {
		winner = strings.ToLower(fmt.Sprintf("%v", raw))
	} else if proScore > conScore {
		winner = "pro"
	} else {
		winner = "con"
	}
	if winner != "pro" && winner != "con" {
		return nil, fmt.Errorf("winner must be %q or %q, got %q", "pro", "con", winner)
	}

	reasoning := ""
	if r, ok := data["reasoning"].(string); ok {
		reasoning = r
	}

	return &Judgment{
		ProScore:  proScore,
		ConScore:  conScore,
		Winner:    winner,
		Reasoning: reasoning,
		ProScores: proScores,
		ConScores: conScores,
	}, nil
}

// parseAudit validates an auditor response. The overall score defaults to
// the mean of the four criteria when the auditor omits it.
func parseAudit(response string) (*Audit, error) {
	data, err := extractJSON(response)
	if err != nil {
		return nil, err
	}

	fields := [4]string{"accuracy", "fairness", "thoroughness", "reasoning_quality"}
	var scores [4]int
	for i, name := range fields {
		v, ok := intField(data, name)
		if !ok {
			return nil, fmt.Errorf("missing required field in audit: %s", name)
		}
		if v < 0 || v > 10 {
			return nil, fmt.Errorf("%s must be 0-10, got %d", name, v)
		}
		scores[i] = v
	}

	overall := float64(scores[0]+scores[1]+scores[2]+scores[3]) / 4.0
	if raw, ok := data["overall_score"].(float64); ok {
		if raw < 0 || raw > 10 {
			return nil, fmt.Errorf("overall_score must be 0-10, got %g", raw)
		}
		overall = raw
	}

	notes := ""
	if n, ok := data["notes"].(string); ok {
		notes = n
	}

	return &Audit{
		Accuracy:         scores[0],
		Fairness:         scores[1],
		Thoroughness:     scores[2],
		ReasoningQuality: scores[3],
		OverallScore:     overall,
		Notes:            notes,
	}, nil
}
