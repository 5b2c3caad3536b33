package types

// Message types exchanged with clients and the upstream service.
const (
	TypeSearchPathResult   = "search_path_result"
	TypeAllNavigationPaths = "all_navigation_paths"
	TypeBrowserCommand     = "browser_command"

	StatusSuccess = "success"
)

// Client actions understood by the browser agent.
const (
	ActionNavigate  = "navigate"
	ActionClick     = "click"
	ActionType      = "type"
	ActionGoBack    = "goBack"
	ActionGoForward = "goForward"
)

// AllPathsResponse is the payload of an all_navigation_paths push.
type AllPathsResponse struct {
	Query string       `json:"query"`
	Paths []PathDetail `json:"paths"`
}

type PathDetail struct {
	PathID        string           `json:"pathId"`
	Score         *float64         `json:"score"`
	TotalWeight   *int             `json:"total_weight"`
	LastUsed      string           `json:"lastUsed"`
	EstimatedTime *float64         `json:"estimatedTime"`
	Steps         []NavigationStep `json:"steps"`
}

type NavigationStep struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Action         string         `json:"action"`
	Selector       string         `json:"selector"`
	HTMLAttributes map[string]any `json:"htmlAttributes,omitempty"`
}

// SearchPathResult is the upstream search_path_result frame as the relay
// reads it.
type SearchPathResult struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   *struct {
		Query        string        `json:"query"`
		MatchedPaths []MatchedPath `json:"matched_paths"`
		Message      string        `json:"message,omitempty"`
	} `json:"data"`
}

type MatchedPath struct {
	PathID        string        `json:"pathId"`
	Score         *float64      `json:"score"`
	TotalWeight   *int          `json:"total_weight"`
	LastUsed      string        `json:"lastUsed"`
	EstimatedTime *float64      `json:"estimatedTime"`
	Steps         []MatchedStep `json:"steps"`
}

type MatchedStep struct {
	Title    string `json:"title"`
	Action   string `json:"action"`
	URL      string `json:"url"`
	Selector string `json:"selector"`
}
