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
// Package debate defines the domain model: models, topics, debates, and
// transcript entries, along with their status and phase enumerations.
package debate

import (
	"time"

	"github.com/google/uuid"
)

// TopicSource identifies where a topic came from.
type TopicSource string

const (
	TopicSourceSeed TopicSource = "seed"
	TopicSourceUser TopicSource = "user"
)

// TopicStatus is the lifecycle state of a topic.
type TopicStatus string

const (
	TopicStatusPending  TopicStatus = "pending"
	TopicStatusApproved TopicStatus = "approved"
	TopicStatusSelected TopicStatus = "selected"
	TopicStatusDebated  TopicStatus = "debated"
	TopicStatusRejected TopicStatus = "rejected"
)

// Status is the lifecycle state of a debate.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusJudging    Status = "judging"
	StatusCompleted  Status = "completed"
)

// Phase is one stage of the debate state machine.
type Phase string

const (
	PhaseOpening          Phase = "opening"
	PhaseRebuttal         Phase = "rebuttal"
	PhaseCrossExamination Phase = "cross_examination"
	PhaseClosing          Phase = "closing"
	PhaseJudgment         Phase = "judgment"
	PhaseAudit            Phase = "audit"
)

// Position is the seat a speaker occupies for a transcript entry.
type Position string

const (
	PositionPro     Position = "pro"
	PositionCon     Position = "con"
	PositionJudge   Position = "judge"
	PositionAuditor Position = "auditor"
)

// Role names the four seats of a debate as recorded in excuse logs.
type Role string

const (
	RoleDebaterPro Role = "debater_pro"
	RoleDebaterCon Role = "debater_con"
	RoleJudge      Role = "judge"
	RoleAuditor    Role = "auditor"
)

// Model is an LLM participant. Rows are never deleted; retired models are
// deactivated instead.
type Model struct {
	ID            uuid.UUID
	Name          string
	Provider      string
	APIModelID    string
	EloRating     int
	DebatesWon    int
	DebatesLost   int
	TimesJudged   int
	AvgJudgeScore *float64
	TimesExcused  int
	IsActive      bool
	CreatedAt     time.Time
}

// Topic is a debate proposition.
type Topic struct {
	ID          uuid.UUID
	Title       string
	Subdomain   string
	Domain      string
	Source      TopicSource
	SubmittedBy *string
	VoteCount   int
	Status      TopicStatus
	CreatedAt   time.Time
	DebatedAt   *time.Time
}

// ExcuseRecord is one content-filter or timeout substitution event. The
// accumulated records live in Debate.AnalysisMetadata under the
// "content_filter_excuses" key.
type ExcuseRecord struct {
	ModelID              string `json:"model_id"`
	ModelName            string `json:"model_name"`
	ReplacementModelID   string `json:"replacement_model_id,omitempty"`
	ReplacementModelName string `json:"replacement_model_name,omitempty"`
	Role                 Role   `json:"role"`
	Provider             string `json:"provider"`
	Phase                Phase  `json:"phase,omitempty"`
	ErrorMessage         string `json:"error_message"`
	Attempt              int    `json:"attempt"`
	Reason               string `json:"reason,omitempty"`
}

// AnalysisMetadata is the free-form JSONB payload on a debate.
type AnalysisMetadata struct {
	ContentFilterExcuses []ExcuseRecord `json:"content_filter_excuses,omitempty"`
}

// Debate is one execution of the debate state machine on a topic.
type Debate struct {
	ID           uuid.UUID
	TopicID      uuid.UUID
	DebaterProID uuid.UUID
	DebaterConID uuid.UUID
	JudgeID      uuid.UUID
	AuditorID    uuid.UUID
	WinnerID     *uuid.UUID

	ProScore   *int
	ConScore   *int
	JudgeScore *float64

	ProLogicalConsistency *int
	ProEvidence           *int
	ProPersuasiveness     *int
	ProEngagement         *int
	ConLogicalConsistency *int
	ConEvidence           *int
	ConPersuasiveness     *int
	ConEngagement         *int

	AuditAccuracy         *int
	AuditFairness         *int
	AuditThoroughness     *int
	AuditReasoningQuality *int

	ProEloBefore *int
	ProEloAfter  *int
	ConEloBefore *int
	ConEloAfter  *int

	Status      Status
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time

	AnalysisMetadata *AnalysisMetadata
	IsBlinded        bool
}

// TranscriptEntry is one speaking turn (or a system notice) within a debate.
// Entries are append-only; SequenceOrder is dense and strictly increasing
// per debate.
type TranscriptEntry struct {
	ID            uuid.UUID
	DebateID      uuid.UUID
	Phase         Phase
	SpeakerID     uuid.UUID
	Position      *Position
	Content       string
	TokenCount    int
	SequenceOrder int
	CreatedAt     time.Time

	InputTokens  *int
	OutputTokens *int
	LatencyMS    *int
	CostUSD      *float64
}

// IsSystemNotice reports whether the entry is a substitution notice rather
// than a model's speaking turn. Speaking turns always carry telemetry;
// notices never do.
func (e *TranscriptEntry) IsSystemNotice() bool {
	return e.OutputTokens == nil && e.LatencyMS == nil && e.CostUSD == nil
}

// PhaseTurnCounts maps each debate phase to the number of transcript entries
// a complete phase produces, excluding system notices.
var PhaseTurnCounts = map[Phase]int{
	PhaseOpening:          2,
	PhaseRebuttal:         2,
	PhaseCrossExamination: 4,
	PhaseClosing:          2,
	PhaseJudgment:         1,
	PhaseAudit:            1,
}

// DebatePhases lists the orchestrated phases in execution order. Judgment
// and audit run afterwards under the judge service.
var DebatePhases = []Phase{PhaseOpening, PhaseRebuttal, PhaseCrossExamination, PhaseClosing}

// PositionForRole maps a seat to the transcript position recorded for
// system notices about that seat.
func PositionForRole(r Role) Position {
	switch r {
	case RoleDebaterPro:
		return PositionPro
	case RoleDebaterCon:
		return PositionCon
	case RoleJudge:
		return PositionJudge
	default:
		return PositionAuditor
	}
}
