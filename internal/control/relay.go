package control

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// Paths touching this host are test fixtures and never reach clients.
const excludedDomain = "example.com"

var inputValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`입력.*?[:：]\s*(.+)`),
	regexp.MustCompile(`(?i)type.*?[:：]\s*(.+)`),
	regexp.MustCompile(`"(.+)"\s*입력`),
	regexp.MustCompile(`'(.+)'\s*입력`),
}

// Relay forwards an unsolicited upstream message to the selected session.
// Search results are reshaped into the client's all_navigation_paths
// command; everything else goes through unchanged.
func (s *Service) Relay(raw []byte) {
	target := s.SelectTarget()
	if target == nil {
		logging.Warnf("[Control] relay dropped, no open client session")
		return
	}

	out, ok := reshape(raw)
	if !ok {
		return
	}
	if err := target.Send(out); err != nil {
		logging.Warnf("[Control] relay to %s dropped: %v", target.ID, err)
		return
	}
	logging.Debugf("[Control] relayed %d bytes to %s", len(out), target.ID)
}

// reshape returns the bytes to forward and whether to forward at all.
func reshape(raw []byte) ([]byte, bool) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.Type != types.TypeSearchPathResult {
		return raw, true
	}

	var result types.SearchPathResult
	if err := json.Unmarshal(raw, &result); err != nil {
		logging.Errorf("[Control] search result parse failed: %v", err)
		return nil, false
	}

	paths := convertSearchResult(result)
	if paths == nil {
		return nil, false
	}

	out, err := json.Marshal(types.NewCommand(types.TypeAllNavigationPaths, paths))
	if err != nil {
		logging.Errorf("[Control] navigation paths serialization failed: %v", err)
		return nil, false
	}
	logging.Infof("[Control] search result reshaped: %d paths", len(paths.Paths))
	return out, true
}

func convertSearchResult(result types.SearchPathResult) *types.AllPathsResponse {
	if result.Status != types.StatusSuccess || result.Data == nil || len(result.Data.MatchedPaths) == 0 {
		count := 0
		if result.Data != nil {
			count = len(result.Data.MatchedPaths)
		}
		logging.Infof("[Control] search result not forwarded: status=%s paths=%d", result.Status, count)
		return nil
	}

	var details []types.PathDetail
	for _, p := range result.Data.MatchedPaths {
		if touchesExcludedDomain(p) {
			continue
		}
		details = append(details, convertPath(p))
	}
	if len(details) == 0 {
		logging.Infof("[Control] search result not forwarded: every path is an %s test path", excludedDomain)
		return nil
	}

	return &types.AllPathsResponse{Query: result.Data.Query, Paths: details}
}

func touchesExcludedDomain(p types.MatchedPath) bool {
	for _, step := range p.Steps {
		if strings.Contains(strings.ToLower(step.URL), excludedDomain) {
			return true
		}
	}
	return false
}

func convertPath(p types.MatchedPath) types.PathDetail {
	steps := make([]types.NavigationStep, 0, len(p.Steps))
	for _, st := range p.Steps {
		action := clientAction(st)
		step := types.NavigationStep{
			URL:      st.URL,
			Title:    st.Title,
			Action:   action,
			Selector: st.Selector,
		}
		if action == types.ActionType {
			if v := extractInputValue(st.Action); v != "" {
				step.HTMLAttributes = map[string]any{"value": v}
			}
		}
		steps = append(steps, step)
	}
	return types.PathDetail{
		PathID:        p.PathID,
		Score:         p.Score,
		TotalWeight:   p.TotalWeight,
		LastUsed:      p.LastUsed,
		EstimatedTime: p.EstimatedTime,
		Steps:         steps,
	}
}

// clientAction maps a free-text upstream action onto navigate, click or type.
func clientAction(st types.MatchedStep) string {
	action := strings.ToLower(st.Action)
	switch {
	case strings.Contains(action, "navigate"), strings.Contains(action, "이동"), strings.Contains(action, "접속"):
		return types.ActionNavigate
	case strings.Contains(action, "click"), strings.Contains(action, "클릭"):
		return types.ActionClick
	case strings.Contains(action, "type"), strings.Contains(action, "입력"):
		return types.ActionType
	}
	if strings.TrimSpace(st.Selector) == "" {
		return types.ActionNavigate
	}
	return types.ActionClick
}

func extractInputValue(action string) string {
	for _, re := range inputValuePatterns {
		if m := re.FindStringSubmatch(action); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}
