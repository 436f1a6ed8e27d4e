package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"callpilot/config"
	"callpilot/models"
	"callpilot/services/distance"
	"callpilot/services/providers"
	"callpilot/telephony"
	"callpilot/utils"
	"callpilot/voice"
)

var (
	ToolRegistry    *voice.Registry
	DistanceService distance.Service
	ProviderService providers.Service
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The carrier connects from its own infrastructure; origin checks do not
	// apply to server-to-server media streams.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// carrierMessage is one inbound frame from the carrier media stream.
type carrierMessage struct {
	Event string `json:"event"`

	Start struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"start"`

	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`

	Mark struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// carrierConn serializes writes to the carrier WebSocket. The audio pump and
// the interruption clear can write concurrently.
type carrierConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *carrierConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// MediaStream is the carrier-facing WebSocket endpoint for one live call. It
// runs the whole call session: agent dial-up, duplex audio relay through the
// transcoding bridge, tool dispatch, and result publication.
func MediaStream(c *gin.Context) {
	callSID := c.Param("callSid")
	campaignID := c.Query("campaign_id")
	providerID := c.Query("provider_id")
	logger := utils.GetLogger()

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Media stream upgrade failed",
			zap.String("call_sid", callSID), zap.Error(err))
		return
	}
	defer conn.Close()

	mapping, ok := CampaignStore.GetCall(callSID)
	if !ok {
		mapping = CampaignStore.RegisterCall(callSID, campaignID, providerID)
	}
	if campaignID == "" {
		campaignID = mapping.CampaignID
	}
	if providerID == "" {
		providerID = mapping.ProviderID
	}

	req, err := CampaignStore.GetRequest(campaignID)
	if err != nil {
		logger.Error("Media stream for unknown campaign",
			zap.String("call_sid", callSID), zap.String("campaign_id", campaignID))
		return
	}
	provider, _ := CampaignStore.GetProvider(campaignID, providerID)

	agent, err := voice.DialAgent(config.AppConfig, provider, req)
	if err != nil {
		logger.Error("Agent dial failed",
			zap.String("call_sid", callSID), zap.Error(err))
		CampaignStore.CompleteCall(callSID, models.ProviderCallResult{
			ProviderID: providerID,
			CallSID:    callSID,
			Outcome:    models.OutcomeFailed,
			Notes:      "conversational agent unavailable",
		})
		return
	}
	defer agent.Close()

	session := &streamSession{
		callSID:    callSID,
		campaignID: campaignID,
		providerID: providerID,
		req:        req,
		carrier:    &carrierConn{conn: conn},
		agent:      agent,
		bridge:     telephony.NewBridge(),
		toolCtx: &voice.ToolContext{
			CampaignID: campaignID,
			ProviderID: providerID,
			Store:      CampaignStore,
			Calendar:   CalendarService,
			Distance:   DistanceService,
			Providers:  ProviderService,
			Cfg:        config.AppConfig,
		},
	}
	session.run(c.Request.Context())
}

type streamSession struct {
	callSID    string
	campaignID string
	providerID string
	req        models.AppointmentRequest

	carrier *carrierConn
	agent   *voice.AgentSession
	bridge  *telephony.Bridge

	toolCtx *voice.ToolContext

	mu         sync.Mutex
	streamSID  string
	offers     []models.SlotOffer
	transcript []string
	transport  bool // a transport direction failed mid-call
}

func (s *streamSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.bridge.Close()

	// Blocked WebSocket reads do not observe ctx; closing the transports is
	// what unblocks them when either side ends the session.
	go func() {
		<-ctx.Done()
		s.bridge.Close()
		_ = s.agent.Close()
		_ = s.carrier.conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); defer cancel(); s.readCarrier(ctx) }()
	go func() { defer wg.Done(); defer cancel(); s.readAgent(ctx) }()
	go func() { defer wg.Done(); s.pumpToAgent(ctx) }()
	go func() { defer wg.Done(); s.pumpToCarrier(ctx) }()
	wg.Wait()

	s.conclude()
}

// readCarrier consumes the carrier event stream and feeds caller audio into
// the bridge. Returning ends the session.
func (s *streamSession) readCarrier(ctx context.Context) {
	logger := utils.GetLogger()
	for {
		var msg carrierMessage
		if err := s.carrier.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				s.markTransportFailure()
			}
			return
		}

		switch msg.Event {
		case "connected":
			// Protocol preamble; no stream sid yet.
		case "start":
			s.mu.Lock()
			s.streamSID = msg.Start.StreamSid
			s.mu.Unlock()
			CampaignStore.UpdateStreamSID(s.callSID, msg.Start.StreamSid)
			logger.Info("Media stream started",
				zap.String("call_sid", s.callSID),
				zap.String("stream_sid", msg.Start.StreamSid))
		case "media":
			mulaw, err := telephony.DecodePayload(msg.Media.Payload)
			if err != nil {
				continue
			}
			if err := s.bridge.PushCarrierAudio(ctx, mulaw); err != nil {
				return
			}
		case "mark":
			// Playback checkpoint acknowledgements are not tracked.
		case "stop":
			logger.Info("Media stream stopped", zap.String("call_sid", s.callSID))
			return
		}
	}
}

// pumpToAgent drains agent-bound PCM frames and forwards them as base64
// audio chunks.
func (s *streamSession) pumpToAgent(ctx context.Context) {
	for {
		select {
		case frame := <-s.bridge.ToAgent():
			if err := s.agent.SendAudioChunk(telephony.EncodePayload(frame)); err != nil {
				s.markTransportFailure()
				return
			}
		case <-s.bridge.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// pumpToCarrier drains carrier-bound mu-law frames and forwards them as media
// events on the carrier stream.
func (s *streamSession) pumpToCarrier(ctx context.Context) {
	for {
		select {
		case frame := <-s.bridge.ToCarrier():
			s.mu.Lock()
			streamSID := s.streamSID
			s.mu.Unlock()
			if streamSID == "" {
				continue
			}
			msg := map[string]any{
				"event":     "media",
				"streamSid": streamSID,
				"media":     map[string]string{"payload": telephony.EncodePayload(frame)},
			}
			if err := s.carrier.writeJSON(msg); err != nil {
				s.markTransportFailure()
				return
			}
		case <-s.bridge.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// readAgent consumes the agent event stream: audio, transcripts, tool calls,
// keepalives, and interruptions.
func (s *streamSession) readAgent(ctx context.Context) {
	logger := utils.GetLogger()
	for {
		event, err := s.agent.ReadEvent()
		if err != nil {
			if ctx.Err() == nil {
				s.markTransportFailure()
			}
			return
		}

		switch event.Type {
		case "audio":
			pcm, err := telephony.DecodePayload(event.AudioEvent.AudioBase64)
			if err != nil {
				continue
			}
			if err := s.bridge.PushAgentAudio(ctx, pcm); err != nil {
				return
			}
		case "user_transcript":
			s.appendTranscript("Provider: " + event.UserTranscriptionEvent.UserTranscript)
		case "agent_response":
			s.appendTranscript("Agent: " + event.AgentResponseEvent.AgentResponse)
		case "client_tool_call":
			call := event.ClientToolCall
			result, isError := ToolRegistry.Dispatch(ctx, call.ToolName, call.Parameters, s.toolCtx)
			if call.ToolName == "log_event" && !isError {
				if offers := voice.ExtractOffers(call.Parameters, s.providerID); len(offers) > 0 {
					s.mu.Lock()
					s.offers = append(s.offers, offers...)
					s.mu.Unlock()
				}
			}
			if err := s.agent.SendToolResult(call.ToolCallID, result, isError); err != nil {
				s.markTransportFailure()
				return
			}
		case "ping":
			if err := s.agent.SendPong(event.PingEvent.EventID); err != nil {
				s.markTransportFailure()
				return
			}
		case "interruption":
			// The provider started talking over the agent; flush any queued
			// playback so the agent sounds responsive.
			s.mu.Lock()
			streamSID := s.streamSID
			s.mu.Unlock()
			if streamSID != "" {
				_ = s.carrier.writeJSON(map[string]any{
					"event":     "clear",
					"streamSid": streamSID,
				})
			}
		default:
			logger.Debug("Unhandled agent event",
				zap.String("type", event.Type), zap.String("call_sid", s.callSID))
		}
	}
}

func (s *streamSession) appendTranscript(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	s.mu.Lock()
	s.transcript = append(s.transcript, line)
	s.mu.Unlock()
}

func (s *streamSession) markTransportFailure() {
	s.mu.Lock()
	s.transport = true
	s.mu.Unlock()
}

// conclude derives the session outcome from what the conversation produced
// and publishes it to the waiting call session.
func (s *streamSession) conclude() {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := make([]models.SlotOffer, 0, len(s.offers))
	for _, offer := range s.offers {
		if models.ValidOffer(offer, s.req) {
			valid = append(valid, offer)
		}
	}

	// A dropped transport with nothing usable is a failed call, no matter how
	// far the conversation got before the drop.
	var outcome models.CallOutcome
	switch {
	case len(valid) > 0:
		outcome = models.OutcomeSuccess
	case s.transport:
		outcome = models.OutcomeFailed
	default:
		outcome = models.OutcomeCompletedNoMatch
	}

	CampaignStore.CompleteCall(s.callSID, models.ProviderCallResult{
		ProviderID:        s.providerID,
		CallSID:           s.callSID,
		Outcome:           outcome,
		Offers:            valid,
		TranscriptSnippet: transcriptSnippet(s.transcript),
		Notes:             "live call at " + time.Now().UTC().Format(time.RFC3339),
	})

	utils.GetLogger().Info("Call session concluded",
		zap.String("call_sid", s.callSID),
		zap.String("campaign_id", s.campaignID),
		zap.String("outcome", string(outcome)),
		zap.Int("offers", len(valid)))
}

// transcriptSnippet keeps the tail of the conversation, capped for storage.
func transcriptSnippet(lines []string) string {
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	snippet := strings.Join(lines, "\n")
	if len(snippet) > 500 {
		snippet = snippet[len(snippet)-500:]
	}
	return snippet
}
