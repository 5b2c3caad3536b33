package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

func (l *Link) call(ctx context.Context, typ string, data any, out any) error {
	raw, err := l.Request(ctx, types.NewCommand(typ, data))
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", typ, err)
	}
	return nil
}

// SavePath stores a recorded path in the upstream graph.
func (l *Link) SavePath(ctx context.Context, p types.PathSubmission) (*types.SavePathResponse, error) {
	logging.Infof("[Upstream] save path: domain=%s intent=%s steps=%d", p.Domain, p.TaskIntent, len(p.Steps))
	var out types.SavePathResponse
	if err := l.call(ctx, types.UpstreamSavePath, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchPath asks for paths matching query and returns the raw reply.
func (l *Link) SearchPath(ctx context.Context, query string, limit int, domainHint string) (json.RawMessage, error) {
	data := map[string]any{"query": query, "limit": limit}
	if domainHint != "" {
		data["domain_hint"] = domainHint
	}
	raw, err := l.Request(ctx, types.NewCommand(types.UpstreamSearchPath, data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", types.UpstreamSearchPath, err)
	}
	return raw, nil
}

// SearchPathTyped is SearchPath decoded.
func (l *Link) SearchPathTyped(ctx context.Context, query string, limit int, domainHint string) (*types.SearchPathResponse, error) {
	raw, err := l.SearchPath(ctx, query, limit, domainHint)
	if err != nil {
		return nil, err
	}
	var out types.SearchPathResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode reply: %w", types.UpstreamSearchPath, err)
	}
	return &out, nil
}

func (l *Link) CheckGraph(ctx context.Context) (*types.GraphStatsResponse, error) {
	var out types.GraphStatsResponse
	if err := l.call(ctx, types.UpstreamCheckGraph, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *Link) VisualizePaths(ctx context.Context, domain string) (*types.VisualizePathsResponse, error) {
	var out types.VisualizePathsResponse
	if err := l.call(ctx, types.UpstreamVisualizePaths, map[string]any{"domain": domain}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *Link) FindPopularPaths(ctx context.Context, domain string, limit int) (*types.PopularPathsResponse, error) {
	var out types.PopularPathsResponse
	data := map[string]any{"domain": domain, "limit": limit}
	if err := l.call(ctx, types.UpstreamFindPopularPaths, data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *Link) CreateIndexes(ctx context.Context) (*types.IndexResponse, error) {
	var out types.IndexResponse
	if err := l.call(ctx, types.UpstreamCreateIndexes, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *Link) CleanupPaths(ctx context.Context) (*types.CleanupResponse, error) {
	var out types.CleanupResponse
	if err := l.call(ctx, types.UpstreamCleanupPaths, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendVoiceCommand forwards a transcript as a path search. The reply comes
// back unsolicited and is relayed to the client. Blank transcripts are
// skipped.
func (l *Link) SendVoiceCommand(transcript, sessionID string) error {
	if strings.TrimSpace(transcript) == "" {
		logging.Debugf("[Upstream] voice command skipped: empty transcript")
		return nil
	}
	logging.Infof("[Upstream] voice command: session=%s query=%s", sessionID, logging.Truncate(transcript, 80))
	return l.SendFireAndForget(types.NewCommand(types.UpstreamSearchPath, map[string]any{
		"query":     transcript,
		"limit":     l.opts.SearchLimit,
		"sessionId": sessionID,
	}))
}

// SendContributionData forwards a recorded contribution. Messages without
// steps are skipped.
func (l *Link) SendContributionData(msg types.ContributionMessage) error {
	if len(msg.Steps) == 0 {
		logging.Debugf("[Upstream] contribution skipped: no steps (session %s)", msg.SessionID)
		return nil
	}
	logging.Infof("[Upstream] contribution: session=%s steps=%d partial=%t complete=%t",
		msg.SessionID, len(msg.Steps), msg.IsPartial, msg.IsComplete)
	return l.SendFireAndForget(types.NewCommand(types.TypeSaveContributionPath, map[string]any{
		"sessionId":  msg.SessionID,
		"task":       msg.Task,
		"steps":      msg.Steps,
		"isPartial":  msg.IsPartial,
		"isComplete": msg.IsComplete,
		"totalSteps": msg.TotalSteps,
	}))
}
