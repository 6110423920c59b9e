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
	"fmt"
	"strings"

	"github.com/robuttal/robuttal/pkg/debate"
)

var phaseHeadings = map[debate.Phase]string{
	debate.PhaseOpening:          "Opening Statements",
	debate.PhaseRebuttal:         "Rebuttals",
	debate.PhaseCrossExamination: "Cross-Examination",
	debate.PhaseClosing:          "Closing Arguments",
	debate.PhaseJudgment:         "Judgment",
	debate.PhaseAudit:            "Audit",
}

func phaseHeading(p debate.Phase) string {
	if name, ok := phaseHeadings[p]; ok {
		return name
	}
	return string(p)
}

// formatTranscriptForJudge renders the argumentative phases as plain text.
// In a blinded debate the debaters appear only as Debater A and Debater B
// so the judge cannot favor a known model.
func (s *Service) formatTranscriptForJudge(dc *debateContext) string {
	var lines []string
	if dc.debate.IsBlinded {
		lines = []string{
			"DEBATE TRANSCRIPT",
			fmt.Sprintf("Topic: %s", dc.topic.Title),
			"Pro: Debater A",
			"Con: Debater B",
			"",
			"(Note: This is a blinded evaluation. Model identities have been concealed.)",
			"",
			strings.Repeat("=", 50),
			"",
		}
	} else {
		lines = []string{
			"DEBATE TRANSCRIPT",
			fmt.Sprintf("Topic: %s", dc.topic.Title),
			fmt.Sprintf("Pro: %s", dc.pro.Name),
			fmt.Sprintf("Con: %s", dc.con.Name),
			"",
			strings.Repeat("=", 50),
			"",
		}
	}

	var currentPhase debate.Phase
	for _, entry := range dc.entries {
		if entry.Phase == debate.PhaseJudgment || entry.Phase == debate.PhaseAudit {
			continue
		}
		if entry.Phase != currentPhase {
			currentPhase = entry.Phase
			lines = append(lines, fmt.Sprintf("\n--- %s ---\n", strings.ToUpper(phaseHeading(entry.Phase))))
		}
		positionLabel := "SPEAKER"
		if entry.Position != nil {
			positionLabel = strings.ToUpper(string(*entry.Position))
		}
		lines = append(lines, fmt.Sprintf("[%s]:", positionLabel), entry.Content, "")
	}
	return strings.Join(lines, "\n")
}

// formatTranscriptForAuditor appends the judge's decision to the judge's
// view of the transcript.
func (s *Service) formatTranscriptForAuditor(dc *debateContext) string {
	lines := []string{s.formatTranscriptForJudge(dc)}

	winner := "Con"
	if dc.debate.WinnerID != nil && *dc.debate.WinnerID == dc.debate.DebaterProID {
		winner = "Pro"
	}
	lines = append(lines,
		"\n"+strings.Repeat("=", 50),
		"\nJUDGE'S DECISION",
		fmt.Sprintf("Judge: %s", dc.judge.Name),
		fmt.Sprintf("Pro Score: %d", *dc.debate.ProScore),
		fmt.Sprintf("Con Score: %d", *dc.debate.ConScore),
		fmt.Sprintf("Winner: %s", winner),
		"",
	)

	for _, entry := range dc.entries {
		if entry.Phase == debate.PhaseJudgment {
			lines = append(lines, "Judge's Reasoning:", entry.Content)
			break
		}
	}
	return strings.Join(lines, "\n")
}
