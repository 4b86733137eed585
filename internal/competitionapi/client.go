package competitionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

// NetworkError は REST 呼び出しの失敗
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

var ErrUnauthorized = errors.New("unauthorized")

// Client talks to the competition REST API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type ChatRequest struct {
	CompetitionID string `json:"competitionId"`
	Message       string `json:"message"`
}

type ReactRequest struct {
	CompetitionID string             `json:"competitionId"`
	ParticipantID string             `json:"participantId"`
	ReactionType  types.ReactionKind `json:"reactionType"`
}

type VoteRequest struct {
	CompetitionID string `json:"competitionId"`
	ParticipantID string `json:"participantId"`
}

// GetCompetition retrieves competition details
func (c *Client) GetCompetition(ctx context.Context, competitionID string) (*types.Competition, error) {
	var competition types.Competition
	path := fmt.Sprintf("/api/competitions/%s", url.PathEscape(competitionID))
	if err := c.getJSON(ctx, "get competition", path, &competition); err != nil {
		return nil, err
	}
	return &competition, nil
}

// GetParticipants retrieves the participant list in performance order
func (c *Client) GetParticipants(ctx context.Context, competitionID string) ([]types.Participant, error) {
	var participants []types.Participant
	path := fmt.Sprintf("/api/competitions/%s/participants", url.PathEscape(competitionID))
	if err := c.getJSON(ctx, "get participants", path, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// GetChat retrieves the chat history
func (c *Client) GetChat(ctx context.Context, competitionID string) ([]types.ChatMessage, error) {
	var messages []types.ChatMessage
	path := fmt.Sprintf("/api/competitions/%s/chat", url.PathEscape(competitionID))
	if err := c.getJSON(ctx, "get chat", path, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) PostChat(ctx context.Context, req ChatRequest) error {
	return c.postJSON(ctx, "post chat", "/api/competitions/chat", req, nil)
}

func (c *Client) React(ctx context.Context, req ReactRequest) error {
	return c.postJSON(ctx, "react", "/api/competitions/react", req, nil)
}

func (c *Client) Vote(ctx context.Context, req VoteRequest) error {
	return c.postJSON(ctx, "vote", "/api/competitions/vote", req, nil)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Competition API request failed",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: ErrUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response: %w", err)}
	}
	return nil
}
