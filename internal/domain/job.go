package domain

import (
	"sort"
	"time"
)

// JobKind enumerates the media a conversion job was submitted for.
type JobKind string

const (
	JobKindPhoto JobKind = "photo"
	JobKindVideo JobKind = "video"
)

// JobStatus enumerates conversion job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed:
		return true
	default:
		return false
	}
}

// FinalStatus derives the terminal status from per-input outcomes.
func FinalStatus(succeeded, failed int) JobStatus {
	switch {
	case succeeded > 0 && failed == 0:
		return JobStatusCompleted
	case succeeded > 0:
		return JobStatusPartial
	default:
		return JobStatusFailed
	}
}

// ConversionJob tracks a multi-image conversion from submission to a terminal status.
type ConversionJob struct {
	ID                string
	OwnerID           string
	Authenticated     bool
	Kind              JobKind
	Status            JobStatus
	StyleID           string
	TotalImages       int
	CompletedImages   int
	CreditCost        int
	ResultIDs         []string
	FailedIndices     []int
	InputKeys         []string
	SceneAnalysis     *SceneAnalysis
	StyleReferenceKey string
	ErrorMessage      string
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// ReservedCredits is the amount reserved at submission.
func (j ConversionJob) ReservedCredits() int {
	return j.CreditCost * j.TotalImages
}

// Unresolved counts inputs that have neither succeeded nor exhausted retries.
func (j ConversionJob) Unresolved() int {
	n := j.TotalImages - j.CompletedImages
	if n < 0 {
		return 0
	}
	return n
}

// Progress is the set of fields written after each input resolves.
type Progress struct {
	CompletedImages   int
	ResultIDs         []string
	FailedIndices     []int
	StyleReferenceKey string
}

// Clone returns a deep copy so callers can mutate slices freely.
func (p Progress) Clone() Progress {
	out := p
	out.ResultIDs = append([]string(nil), p.ResultIDs...)
	out.FailedIndices = append([]int(nil), p.FailedIndices...)
	sort.Ints(out.FailedIndices)
	return out
}

// SceneAnalysis is the structured scene description consumed by the prompt builder.
type SceneAnalysis struct {
	Summary    string         `json:"summary,omitempty"`
	Subjects   []SceneSubject `json:"subjects,omitempty"`
	Background []string       `json:"background,omitempty"`
	Lighting   string         `json:"lighting,omitempty"`
}

// SceneSubject is one enumerated subject that must be transformed.
type SceneSubject struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Empty reports whether there is nothing to render.
func (s *SceneAnalysis) Empty() bool {
	return s == nil || (s.Summary == "" && len(s.Subjects) == 0 && len(s.Background) == 0 && s.Lighting == "")
}
