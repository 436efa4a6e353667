package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

const minutesSystemPrompt = `You are a meeting-minutes assistant. You are given the full transcript of a meeting.
Produce a faithful structured summary. Do not invent facts that are not in the transcript.
Dates must be ISO-8601 (YYYY-MM-DD) when a due date is mentioned, otherwise omit them.`

// minutesSchema is the strict json_schema the model must fill.
var minutesSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"overview", "key_points", "decisions", "next_steps", "action_items"},
	"properties": map[string]any{
		"overview":   map[string]any{"type": "string"},
		"key_points": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"decisions":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"next_steps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"action_items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"description", "assignee"},
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"assignee":    map[string]any{"type": "string"},
					"due_date":    map[string]any{"type": "string"},
				},
			},
		},
	},
}

// MinutesSummarizer implements engine.Summarizer using structured outputs.
type MinutesSummarizer struct {
	log    *logger.Logger
	client Client
}

func NewMinutesSummarizer(client Client, baseLog *logger.Logger) *MinutesSummarizer {
	return &MinutesSummarizer{
		log:    baseLog.With("service", "MinutesSummarizer"),
		client: client,
	}
}

func (s *MinutesSummarizer) Summarize(ctx context.Context, text string) (*engine.Minutes, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, engine.PermanentFailure("empty transcript", nil)
	}

	obj, err := s.client.GenerateJSON(ctx, minutesSystemPrompt, text, "meeting_minutes", minutesSchema)
	if err != nil {
		return nil, classifyOpenAIError("summarization failed", err)
	}

	minutes, err := decodeMinutes(obj)
	if err != nil {
		return nil, engine.PermanentFailure("malformed summary from model", err)
	}
	return minutes, nil
}

// decodeMinutes maps the schema-validated object into engine.Minutes,
// tolerating missing optional fields and unparseable due dates.
func decodeMinutes(obj map[string]any) (*engine.Minutes, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	var wire struct {
		Overview    string   `json:"overview"`
		KeyPoints   []string `json:"key_points"`
		Decisions   []string `json:"decisions"`
		NextSteps   []string `json:"next_steps"`
		ActionItems []struct {
			Description string `json:"description"`
			Assignee    string `json:"assignee"`
			DueDate     string `json:"due_date"`
		} `json:"action_items"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if strings.TrimSpace(wire.Overview) == "" {
		return nil, fmt.Errorf("summary missing overview")
	}

	out := &engine.Minutes{
		Overview:  strings.TrimSpace(wire.Overview),
		KeyPoints: cleanStrings(wire.KeyPoints),
		Decisions: cleanStrings(wire.Decisions),
		NextSteps: cleanStrings(wire.NextSteps),
	}
	for _, item := range wire.ActionItems {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			continue
		}
		ai := types.ActionItem{
			Description: desc,
			Assignee:    strings.TrimSpace(item.Assignee),
		}
		if d := strings.TrimSpace(item.DueDate); d != "" {
			if parsed, err := time.Parse("2006-01-02", d); err == nil {
				ai.DueDate = &parsed
			}
		}
		out.ActionItems = append(out.ActionItems, ai)
	}
	return out, nil
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
