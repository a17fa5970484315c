// Package exam conducts interactive exam dialog sessions: an LLM generates
// the questions and grades the answers, and every exchange is recorded
// into the session's dialog log.
package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/dialoglog/internal/model"
)

const maxRecommendations = 3

// GeneratedQuestion is the LLM's response to a question request.
type GeneratedQuestion struct {
	Question     string `json:"question"`
	TopicLevel   string `json:"topic_level"`
	QuestionType string `json:"question_type"`
	KeyPoints    string `json:"key_points"`
}

// EvaluationResult is the LLM's grading of one answer.
type EvaluationResult struct {
	TotalScore     float64            `json:"total_score"`
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Strengths      string             `json:"strengths"`
	Weaknesses     string             `json:"weaknesses"`
}

// EvaluationSummary carries the graded characteristics of one earlier
// answer, for generating follow-up questions and final recommendations.
// It never includes the answer text: question generation sees scores and
// observations only.
type EvaluationSummary struct {
	QuestionNumber int
	TopicLevel     string
	QuestionType   string
	TotalScore     float64
	Weaknesses     string
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	retries uint64
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		retries: 3,
	}
}

// Ping verifies that the API endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// chat sends one completion request and returns the raw response content.
// Transient API failures are retried with exponential backoff.
func (c *Client) chat(ctx context.Context, temperature float32, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	}

	var raw string
	operation := func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("LLM returned no choices"))
		}
		raw = resp.Choices[0].Message.Content
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), c.retries)); err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// GenerateQuestion asks the LLM for question number of total on the given
// topic. history carries the characteristics of earlier evaluations so the
// LLM can build on them.
func (c *Client) GenerateQuestion(ctx context.Context, topic model.TopicInfo, number, total int, history []EvaluationSummary) (*GeneratedQuestion, error) {
	raw, err := c.chat(ctx, 0.7, buildQuestionSystemPrompt(topic, number, total, history), "Generate the next exam question.")
	if err != nil {
		return nil, err
	}

	var gq GeneratedQuestion
	if err := json.Unmarshal([]byte(raw), &gq); err != nil {
		return nil, fmt.Errorf("parse question response: %w (raw: %s)", err, raw)
	}
	if gq.Question == "" {
		return nil, fmt.Errorf("LLM returned an empty question (raw: %s)", raw)
	}
	if gq.TopicLevel == "" {
		gq.TopicLevel = topic.Name
	}
	if gq.QuestionType == "" {
		if number == 1 {
			gq.QuestionType = QuestionTypeInitial
		} else {
			gq.QuestionType = QuestionTypeContextual
		}
	}
	return &gq, nil
}

// EvaluateAnswer sends the student's answer for grading. Scores coming
// back outside 0..10 are clamped rather than rejected.
func (c *Client) EvaluateAnswer(ctx context.Context, q model.Question, answer string) (*EvaluationResult, error) {
	raw, err := c.chat(ctx, 0.3, buildEvaluationSystemPrompt(q), "STUDENT ANSWER:\n"+answer)
	if err != nil {
		return nil, err
	}

	var res EvaluationResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("parse evaluation response: %w (raw: %s)", err, raw)
	}
	if res.CriteriaScores == nil {
		res.CriteriaScores = map[string]float64{}
	}
	clampScores(&res)
	return &res, nil
}

// Recommendations asks the LLM for final study recommendations based on
// the evaluated answers.
func (c *Client) Recommendations(ctx context.Context, topic model.TopicInfo, history []EvaluationSummary) ([]string, error) {
	raw, err := c.chat(ctx, 0.5, buildRecommendationsSystemPrompt(topic, history), "Produce the study recommendations.")
	if err != nil {
		return nil, err
	}

	var res struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("parse recommendations response: %w (raw: %s)", err, raw)
	}
	if len(res.Recommendations) > maxRecommendations {
		res.Recommendations = res.Recommendations[:maxRecommendations]
	}
	return res.Recommendations, nil
}

func clampScores(res *EvaluationResult) {
	res.TotalScore = clampScore(res.TotalScore)
	for name, score := range res.CriteriaScores {
		res.CriteriaScores[name] = clampScore(score)
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > model.MaxQuestionScore {
		return model.MaxQuestionScore
	}
	return v
}
