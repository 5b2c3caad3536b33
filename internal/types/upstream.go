package types

// Upstream request types.
const (
	UpstreamSavePath         = "save_new_path"
	UpstreamSearchPath       = "search_new_path"
	UpstreamCheckGraph       = "check_graph"
	UpstreamVisualizePaths   = "visualize_paths"
	UpstreamFindPopularPaths = "find_popular_paths"
	UpstreamCreateIndexes    = "create_new_indexes"
	UpstreamCleanupPaths     = "cleanup_paths"
)

// PathSubmission is a path recorded for the upstream graph.
type PathSubmission struct {
	SessionID  string     `json:"session_id"`
	TaskIntent string     `json:"task_intent"`
	Domain     string     `json:"domain"`
	Steps      []StepData `json:"steps"`
}

type StepData struct {
	URL                    string   `json:"url"`
	Domain                 string   `json:"domain"`
	Selectors              []string `json:"selectors"`
	AnchorPoint            string   `json:"anchor_point,omitempty"`
	RelativePathFromAnchor string   `json:"relative_path_from_anchor,omitempty"`
	Action                 string   `json:"action"`
	IsInput                bool     `json:"is_input"`
	InputType              string   `json:"input_type,omitempty"`
	InputPlaceholder       string   `json:"input_placeholder,omitempty"`
	ShouldWait             bool     `json:"should_wait"`
	WaitMessage            string   `json:"wait_message,omitempty"`
	MaxWaitTime            int      `json:"max_wait_time,omitempty"`
	Description            string   `json:"description,omitempty"`
	TextLabels             []string `json:"text_labels,omitempty"`
	ContextText            string   `json:"context_text,omitempty"`
	SuccessRate            float64  `json:"success_rate,omitempty"`
}

type SavePathResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Message string `json:"message"`
		Result  struct {
			Status     string `json:"status"`
			Domain     string `json:"domain"`
			TaskIntent string `json:"task_intent"`
			StepsSaved int    `json:"steps_saved"`
		} `json:"result"`
	} `json:"data"`
}

type SearchPathResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Query        string         `json:"query"`
		TotalMatched int            `json:"total_matched"`
		MatchedPaths []SearchedPath `json:"matched_paths"`
		Performance  struct {
			SearchTime int `json:"search_time"`
		} `json:"performance"`
	} `json:"data"`
}

// SearchedPath is a task-intent match returned by search_new_path.
type SearchedPath struct {
	Domain         string         `json:"domain"`
	TaskIntent     string         `json:"task_intent"`
	RelevanceScore float64        `json:"relevance_score"`
	Weight         int            `json:"weight"`
	Steps          []SearchedStep `json:"steps"`
}

type SearchedStep struct {
	Order            int      `json:"order"`
	URL              string   `json:"url"`
	Action           string   `json:"action"`
	Selectors        []string `json:"selectors"`
	Description      string   `json:"description,omitempty"`
	IsInput          bool     `json:"is_input"`
	InputType        string   `json:"input_type,omitempty"`
	InputPlaceholder string   `json:"input_placeholder,omitempty"`
	ShouldWait       bool     `json:"should_wait"`
	WaitMessage      string   `json:"wait_message,omitempty"`
	TextLabels       []string `json:"text_labels,omitempty"`
}

type GraphStatsResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Message           string         `json:"message"`
		NodeCounts        map[string]int `json:"node_counts"`
		RelationshipCount int            `json:"relationship_count"`
	} `json:"data"`
}

type VisualizePathsResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Domain string           `json:"domain"`
		Nodes  []map[string]any `json:"nodes"`
		Edges  []map[string]any `json:"edges"`
	} `json:"data"`
}

type PopularPathsResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Domain       string `json:"domain"`
		PopularPaths []struct {
			TaskIntent string `json:"task_intent"`
			Weight     int    `json:"weight"`
			StepCount  int    `json:"step_count"`
		} `json:"popular_paths"`
	} `json:"data"`
}

type IndexResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Message string `json:"message"`
	} `json:"data"`
}

type CleanupResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Message          string `json:"message"`
		DeletedRelations int    `json:"deleted_relations"`
	} `json:"data"`
}
