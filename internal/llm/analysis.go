package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnalysisInput is everything the model needs to score one screening call.
type AnalysisInput struct {
	CandidateName  string   `json:"candidateName,omitempty"`
	PositionTitle  string   `json:"positionTitle"`
	SeniorityLevel string   `json:"seniorityLevel"`
	RequiredSkills []string `json:"requiredSkills"`
	Transcript     string   `json:"transcript"`
}

// EncodeInput serializes an AnalysisInput for engine submission.
func EncodeInput(in AnalysisInput) ([]byte, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return nil, fmt.Errorf("transcript is required")
	}
	return json.Marshal(in)
}

// SkillAssessment scores one required skill from the conversation.
type SkillAssessment struct {
	Skill    string `json:"skill"`
	Score    int    `json:"score"`
	Evidence string `json:"evidence"`
}

// Analysis is the structured scoring output required from the model.
type Analysis struct {
	OverallScore     int               `json:"overall_score"`
	Recommendation   string            `json:"recommendation"`
	Summary          string            `json:"summary"`
	SkillAssessments []SkillAssessment `json:"skill_assessments"`
	Strengths        []string          `json:"strengths"`
	Concerns         []string          `json:"concerns"`
}

// ValidateAnalysis checks that raw model output is usable scoring JSON.
// Anything that fails here fails the analysis stage; a half-parsed score
// must never reach a report.
func ValidateAnalysis(raw []byte) (Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return Analysis{}, fmt.Errorf("analysis output is not valid JSON: %w", err)
	}
	if a.OverallScore < 0 || a.OverallScore > 100 {
		return Analysis{}, fmt.Errorf("overall_score %d out of range", a.OverallScore)
	}
	switch a.Recommendation {
	case "advance", "reject", "review":
	default:
		return Analysis{}, fmt.Errorf("unknown recommendation %q", a.Recommendation)
	}
	for _, sa := range a.SkillAssessments {
		if sa.Score < 0 || sa.Score > 100 {
			return Analysis{}, fmt.Errorf("skill %q score %d out of range", sa.Skill, sa.Score)
		}
	}
	return a, nil
}

// BuildPrompt renders the system and user messages for a screening analysis.
func BuildPrompt(in AnalysisInput) (system, user string) {
	var b strings.Builder
	b.WriteString("You are an experienced technical recruiter reviewing the transcript of a phone screening call. ")
	b.WriteString("Score the candidate strictly against the position requirements. ")
	b.WriteString("Respond with a single JSON object and nothing else, using this shape: ")
	b.WriteString(`{"overall_score":0-100,"recommendation":"advance"|"reject"|"review","summary":"...","skill_assessments":[{"skill":"...","score":0-100,"evidence":"..."}],"strengths":["..."],"concerns":["..."]}`)
	system = b.String()

	var u strings.Builder
	if in.CandidateName != "" {
		fmt.Fprintf(&u, "Candidate: %s\n", in.CandidateName)
	}
	fmt.Fprintf(&u, "Position: %s\n", in.PositionTitle)
	if in.SeniorityLevel != "" {
		fmt.Fprintf(&u, "Seniority: %s\n", in.SeniorityLevel)
	}
	if len(in.RequiredSkills) > 0 {
		fmt.Fprintf(&u, "Required skills: %s\n", strings.Join(in.RequiredSkills, ", "))
	}
	u.WriteString("\nTranscript:\n")
	u.WriteString(in.Transcript)
	user = u.String()
	return system, user
}
