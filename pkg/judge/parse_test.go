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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "bare object", input: `{"winner": "pro"}`},
		{name: "leading whitespace", input: "\n\t  {\"winner\": \"con\"}  "},
		{name: "fenced json block", input: "Here you go:\n```json\n{\"winner\": \"pro\"}\n```\nHope that helps."},
		{name: "fenced without language", input: "```\n{\"winner\": \"pro\"}\n```"},
		{name: "embedded in prose", input: `After careful thought, my verdict is {"winner": "con", "nested": {"a": 1}} as shown above.`},
		{name: "no json at all", input: "I refuse to answer in JSON.", wantErr: true},
		{name: "unbalanced braces", input: `{"winner": "pro"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := extractJSON(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, data["winner"])
		})
	}
}

func TestParseJudgmentLegacyFormat(t *testing.T) {
	j, err := parseJudgment(`{"pro_score": 70, "con_score": 65, "winner": "pro", "reasoning": "closer engagement"}`)
	require.NoError(t, err)
	assert.Equal(t, 70, j.ProScore)
	assert.Equal(t, 65, j.ConScore)
	assert.Nil(t, j.ProScores)
	assert.Nil(t, j.ConScores)
}

func TestParseJudgmentWinnerDefaultsFromScores(t *testing.T) {
	j, err := parseJudgment(`{"pro_score": 55, "con_score": 60}`)
	require.NoError(t, err)
	assert.Equal(t, "con", j.Winner)

	j, err = parseJudgment(`{"pro_score": 61, "con_score": 60}`)
	require.NoError(t, err)
	assert.Equal(t, "pro", j.Winner)
}

func TestParseJudgmentRejectsOutOfRange(t *testing.T) {
	_, err := parseJudgment(`{"pro_score": 120, "con_score": 60, "winner": "pro"}`)
	assert.ErrorContains(t, err, "pro_score must be 0-100")

	_, err = parseJudgment(`{"pro_score": 60, "con_score": -3, "winner": "con"}`)
	assert.ErrorContains(t, err, "con_score must be 0-100")
}

func TestParseJudgmentRejectsBadWinner(t *testing.T) {
	_, err := parseJudgment(`{"pro_score": 60, "con_score": 55, "winner": "draw"}`)
	assert.ErrorContains(t, err, "winner must be")
}

func TestParseAuditDefaultsOverallToMean(t *testing.T) {
	a, err := parseAudit(`{"accuracy": 8, "fairness": 6, "thoroughness": 7, "reasoning_quality": 9}`)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, a.OverallScore, 1e-9)
}

func TestParseAuditRejectsMissingField(t *testing.T) {
	_, err := parseAudit(`{"accuracy": 8, "fairness": 6, "thoroughness": 7}`)
	assert.ErrorContains(t, err, "missing required field in audit: reasoning_quality")
}

func TestParseAuditRejectsOutOfRange(t *testing.T) {
	_, err := parseAudit(`{"accuracy": 11, "fairness": 6, "thoroughness": 7, "reasoning_quality": 9}`)
	assert.ErrorContains(t, err, "accuracy must be 0-10")

	_, err = parseAudit(`{"accuracy": 8, "fairness": 6, "thoroughness": 7, "reasoning_quality": 9, "overall_score": 47}`)
	assert.ErrorContains(t, err, "overall_score must be 0-10")
}
