package types

import "encoding/json"

const (
	TypeSaveContributionPath = "save_contribution_path"
	TypeContributionResponse = "contribution_response"
)

// ContributionMessage is a recorded browsing path sent by a client for the
// upstream knowledge graph. Steps stay raw: the hub does not interpret them.
type ContributionMessage struct {
	Type       string            `json:"type,omitempty"`
	SessionID  string            `json:"sessionId"`
	Task       string            `json:"task"`
	Steps      []json.RawMessage `json:"steps"`
	IsPartial  bool              `json:"isPartial,omitempty"`
	IsComplete bool              `json:"isComplete,omitempty"`
	TotalSteps int               `json:"totalSteps,omitempty"`
}

// ContributionResponse acknowledges a ContributionMessage.
type ContributionResponse struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	StepCount int    `json:"stepCount"`
}
