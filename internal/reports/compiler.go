package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"prescreen-backend/internal/artifacts"
	"prescreen-backend/internal/directory"
	"prescreen-backend/internal/interviews"
	"prescreen-backend/internal/llm"
	"prescreen-backend/internal/shared/util"
	"prescreen-backend/internal/stt"
)

// ErrIncompleteInputs means the interview lacks a ready transcript or
// analysis artifact, so there is nothing to compile.
var ErrIncompleteInputs = errors.New("report inputs incomplete")

// Report is the final deliverable for an interview. The document is a pure
// function of its inputs: compiling the same artifacts twice yields
// byte-identical output, so it carries no wall-clock fields.
type Report struct {
	Version     int            `json:"version"`
	InterviewID string         `json:"interviewId"`
	Candidate   ReportPerson   `json:"candidate"`
	Position    ReportPosition `json:"position"`
	Call        ReportCall     `json:"call"`
	Transcript  stt.Transcript `json:"transcript"`
	Analysis    llm.Analysis   `json:"analysis"`
	Inputs      ReportInputs   `json:"inputs"`
}

// ReportPerson identifies the candidate.
type ReportPerson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReportPosition identifies the role screened for.
type ReportPosition struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	SeniorityLevel string   `json:"seniorityLevel,omitempty"`
	RequiredSkills []string `json:"requiredSkills,omitempty"`
}

// ReportCall summarizes how the call went.
type ReportCall struct {
	Attempts int `json:"attempts"`
}

// ReportInputs records the hashes of the artifacts the report was built
// from, for audit.
type ReportInputs struct {
	TranscriptSHA256 string `json:"transcriptSha256"`
	AnalysisSHA256   string `json:"analysisSha256"`
}

// Compiler assembles reports from stored artifacts.
type Compiler struct {
	Artifacts *artifacts.Service
	Directory directory.Directory
}

// NewCompiler constructs a Compiler.
func NewCompiler(svc *artifacts.Service, dir directory.Directory) *Compiler {
	return &Compiler{Artifacts: svc, Directory: dir}
}

// Compile loads and verifies the interview's transcript and analysis, joins
// them with directory data, and stores the result as the report artifact.
// The storage key embeds the content hash, so regenerating an unchanged
// report rewrites the same object.
func (c *Compiler) Compile(ctx context.Context, iv interviews.Interview) (artifacts.Artifact, error) {
	if iv.TranscriptArtifactID == "" || iv.AnalysisArtifactID == "" {
		return artifacts.Artifact{}, ErrIncompleteInputs
	}

	transcriptRaw, transcriptArt, err := c.Artifacts.LoadVerified(ctx, iv.TenantID, iv.TranscriptArtifactID)
	if err != nil {
		return artifacts.Artifact{}, fmt.Errorf("load transcript: %w", err)
	}
	analysisRaw, analysisArt, err := c.Artifacts.LoadVerified(ctx, iv.TenantID, iv.AnalysisArtifactID)
	if err != nil {
		return artifacts.Artifact{}, fmt.Errorf("load analysis: %w", err)
	}

	var transcript stt.Transcript
	if err := json.Unmarshal(transcriptRaw, &transcript); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("transcript parse: %w", err)
	}
	analysis, err := llm.ValidateAnalysis(analysisRaw)
	if err != nil {
		return artifacts.Artifact{}, err
	}

	candidate, err := c.Directory.Candidate(ctx, iv.TenantID, iv.CandidateID)
	if err != nil {
		return artifacts.Artifact{}, fmt.Errorf("candidate lookup: %w", err)
	}
	position, err := c.Directory.Position(ctx, iv.TenantID, iv.PositionID)
	if err != nil {
		return artifacts.Artifact{}, fmt.Errorf("position lookup: %w", err)
	}

	report := Report{
		Version:     1,
		InterviewID: iv.ID,
		Candidate:   ReportPerson{ID: candidate.ID, Name: candidate.Name},
		Position: ReportPosition{
			ID:             position.ID,
			Title:          position.Title,
			SeniorityLevel: position.SeniorityLevel,
			RequiredSkills: position.RequiredSkills,
		},
		Call:       ReportCall{Attempts: iv.CallAttempts},
		Transcript: transcript,
		Analysis:   analysis,
		Inputs: ReportInputs{
			TranscriptSHA256: transcriptArt.SHA256,
			AnalysisSHA256:   analysisArt.SHA256,
		},
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return artifacts.Artifact{}, err
	}

	filename := fmt.Sprintf("report-%s.json", util.HashBytes(payload)[:12])
	return c.Artifacts.SaveBytes(ctx, iv.TenantID, iv.ID, artifacts.KindReport, filename, "application/json", payload)
}
