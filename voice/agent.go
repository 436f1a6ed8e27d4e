// Package voice bridges to the conversational agent: the WebSocket session,
// the per-call prompt, and the tool-dispatch registry the agent calls into
// mid-conversation.
package voice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"callpilot/config"
	"callpilot/models"
	"callpilot/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	convaiWSEndpoint        = "wss://api.elevenlabs.io/v1/convai/conversation"
	convaiSignedURLEndpoint = "https://api.elevenlabs.io/v1/convai/conversation/get-signed-url"
)

// AgentEvent is one inbound message from the agent transport.
type AgentEvent struct {
	Type string `json:"type"`

	AudioEvent struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event"`

	UserTranscriptionEvent struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`

	AgentResponseEvent struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`

	ClientToolCall struct {
		ToolName   string          `json:"tool_name"`
		ToolCallID string          `json:"tool_call_id"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"client_tool_call"`

	PingEvent struct {
		EventID int `json:"event_id"`
		PingMS  int `json:"ping_ms"`
	} `json:"ping_event"`
}

// AgentSession is one live conversational-agent WebSocket session.
type AgentSession struct {
	conn *websocket.Conn
}

// DialAgent opens an agent session with a per-provider prompt override. It
// prefers a signed URL (keeps the API key server-side) and falls back to the
// direct endpoint.
func DialAgent(cfg config.Config, provider models.Provider, req models.AppointmentRequest) (*AgentSession, error) {
	logger := utils.GetLogger()
	if cfg.ElevenLabsAgentID == "" || cfg.ElevenLabsAPIKey == "" {
		return nil, fmt.Errorf("conversational agent credentials not configured")
	}

	wsURL, err := fetchSignedURL(cfg)
	if err != nil {
		wsURL = fmt.Sprintf("%s?agent_id=%s", convaiWSEndpoint, cfg.ElevenLabsAgentID)
		logger.Warn("Using unsigned agent WS URL (signed URL failed)", zap.Error(err))
	}

	header := http.Header{}
	header.Set("Origin", "https://callpilot.app")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect agent WS: %w", err)
	}

	session := &AgentSession{conn: conn}

	initMsg := map[string]any{
		"type": "conversation_initiation_client_data",
		"conversation_config_override": map[string]any{
			"agent": map[string]any{
				"prompt":        map[string]any{"prompt": BuildSystemPrompt(provider, req)},
				"first_message": FirstMessage(provider, req),
				"language":      "en",
			},
		},
	}
	if err := conn.WriteJSON(initMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send agent initiation: %w", err)
	}

	// The first inbound message confirms the session.
	event, err := session.ReadEvent()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("agent session confirmation failed: %w", err)
	}
	if event.Type != "conversation_initiation_metadata" {
		logger.Warn("Unexpected first agent message", zap.String("type", event.Type))
	}

	return session, nil
}

func fetchSignedURL(cfg config.Config) (string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s?agent_id=%s", convaiSignedURLEndpoint, cfg.ElevenLabsAgentID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", cfg.ElevenLabsAPIKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signed URL request returned status %d", resp.StatusCode)
	}

	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("signed URL response was empty")
	}
	return body.SignedURL, nil
}

// ReadEvent blocks for the next inbound agent message.
func (s *AgentSession) ReadEvent() (AgentEvent, error) {
	var event AgentEvent
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return event, err
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return event, err
	}
	return event, nil
}

// SendAudioChunk forwards one base64 PCM chunk of caller audio to the agent.
func (s *AgentSession) SendAudioChunk(pcmBase64 string) error {
	return s.conn.WriteJSON(map[string]string{"user_audio_chunk": pcmBase64})
}

// SendToolResult returns a tool invocation result to the agent.
func (s *AgentSession) SendToolResult(toolCallID, result string, isError bool) error {
	return s.conn.WriteJSON(map[string]any{
		"type":         "client_tool_result",
		"tool_call_id": toolCallID,
		"result":       result,
		"is_error":     isError,
	})
}

// SendPong answers an agent keepalive.
func (s *AgentSession) SendPong(eventID int) error {
	return s.conn.WriteJSON(map[string]any{"type": "pong", "event_id": eventID})
}

// Close tears down the session transport.
func (s *AgentSession) Close() error {
	return s.conn.Close()
}
