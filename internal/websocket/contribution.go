package websocket

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

const contributionSaved = "contribution data saved successfully"

func (h *Handler) handleContribution(msg []byte) types.ContributionResponse {
	var c types.ContributionMessage
	if err := json.Unmarshal(msg, &c); err != nil {
		return contributionFailure(readSessionID(msg), err)
	}
	if err := validateContribution(c); err != nil {
		return contributionFailure(c.SessionID, err)
	}
	c.Type = types.TypeSaveContributionPath

	logging.Infof("[WS] contribution: session=%s steps=%d", c.SessionID, len(c.Steps))

	if h.upstream == nil {
		return contributionFailure(c.SessionID, errors.New("upstream not configured"))
	}
	if err := h.upstream.SendContributionData(c); err != nil {
		return contributionFailure(c.SessionID, err)
	}

	return types.ContributionResponse{
		Type:      types.TypeContributionResponse,
		SessionID: c.SessionID,
		Success:   true,
		Message:   contributionSaved,
		StepCount: len(c.Steps),
	}
}

func validateContribution(c types.ContributionMessage) error {
	var errs []error
	if strings.TrimSpace(c.SessionID) == "" {
		errs = append(errs, errors.New("sessionId is required"))
	}
	if strings.TrimSpace(c.Task) == "" {
		errs = append(errs, errors.New("task is required"))
	}
	if len(c.Steps) == 0 {
		errs = append(errs, errors.New("steps must not be empty"))
	}
	return errors.Join(errs...)
}

func contributionFailure(sessionID string, err error) types.ContributionResponse {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = "unknown"
	}
	logging.Warnf("[WS] contribution failed: session=%s: %v", sessionID, err)
	return types.ContributionResponse{
		Type:      types.TypeContributionResponse,
		SessionID: sessionID,
		Success:   false,
		Message:   "contribution processing failed: " + err.Error(),
		StepCount: 0,
	}
}

// readSessionID pulls sessionId out of a frame that failed to decode as a
// whole.
func readSessionID(msg []byte) string {
	var probe struct {
		SessionID any `json:"sessionId"`
	}
	if json.Unmarshal(msg, &probe) != nil {
		return ""
	}
	s, _ := probe.SessionID.(string)
	return s
}
