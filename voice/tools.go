package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"callpilot/config"
	"callpilot/models"
	"callpilot/services/calendar"
	"callpilot/services/distance"
	"callpilot/services/providers"
	"callpilot/store"
	"callpilot/utils"

	"go.uber.org/zap"
)

// ToolError is the typed failure returned to the agent. The session itself
// never fails on a tool error; the agent may retry or continue without the
// answer.
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewUnsupportedToolError(name string) error {
	return &ToolError{Code: "unsupportedTool", Message: fmt.Sprintf("unknown tool: %s", name)}
}

func NewToolTimeoutError(name string) error {
	return &ToolError{Code: "toolTimeout", Message: fmt.Sprintf("tool %s timed out", name)}
}

// ToolContext carries the collaborators a tool handler may need.
type ToolContext struct {
	CampaignID string
	ProviderID string
	Store      *store.Store
	Calendar   calendar.Service
	Distance   distance.Service
	Providers  providers.Service
	Cfg        config.Config
}

// Handler executes one tool invocation.
type Handler func(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error)

// Registry maps tool names to typed handlers. The tool surface is closed:
// unknown names hit the unsupported fallback in Dispatch.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds the registry with the full tool surface.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.handlers["availability_check"] = availabilityCheck
	r.handlers["slot_validate"] = slotValidate
	r.handlers["distance_check"] = distanceCheck
	r.handlers["log_event"] = logEvent
	r.handlers["provider_lookup"] = providerLookup
	r.handlers["alternatives_propose"] = alternativesPropose
	return r
}

// Dispatch routes one tool call and returns the JSON-encoded result string
// for the agent plus an is-error flag. A per-call timeout from config bounds
// every invocation; a timeout yields a typed tool error, not a session
// failure.
func (r *Registry) Dispatch(ctx context.Context, name string, params json.RawMessage, tc *ToolContext) (string, bool) {
	logger := utils.GetLogger()

	handler, ok := r.handlers[name]
	if !ok {
		logger.Warn("Unknown tool called", zap.String("tool", name),
			zap.String("campaign_id", tc.CampaignID))
		return marshalToolError(NewUnsupportedToolError(name)), true
	}

	timeout := time.Duration(tc.Cfg.ToolTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := handler(callCtx, params, tc)
		resultCh <- outcome{result: result, err: err}
	}()

	select {
	case out := <-resultCh:
		if out.err != nil {
			logger.Error("Tool failed", zap.String("tool", name),
				zap.String("campaign_id", tc.CampaignID), zap.Error(out.err))
			return marshalToolError(out.err), true
		}
		data, err := json.Marshal(out.result)
		if err != nil {
			return marshalToolError(fmt.Errorf("tool %s produced an unencodable result", name)), true
		}
		return string(data), false
	case <-callCtx.Done():
		logger.Warn("Tool timed out", zap.String("tool", name),
			zap.String("campaign_id", tc.CampaignID))
		return marshalToolError(NewToolTimeoutError(name)), true
	}
}

func marshalToolError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

// ----- tool implementations -----

type timeRangeParams struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// availabilityCheck reports whether the client's calendar is free over a
// window.
func availabilityCheck(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error) {
	var p timeRangeParams
	if err := json.Unmarshal(params, &p); err != nil || p.Start.IsZero() || p.End.IsZero() {
		return map[string]any{"free": false, "error": "invalid datetime format"}, nil
	}

	free, err := tc.Calendar.IsFree(ctx, p.Start, p.End)
	if err != nil {
		// Fail closed: an unverifiable slot is reported as not free.
		return map[string]any{"free": false, "error": "calendar unavailable, cannot verify"}, nil
	}
	return map[string]any{"free": free}, nil
}

type slotValidateParams struct {
	ProviderID string    `json:"provider_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// slotValidate checks a proposed slot against the campaign's requested range
// and duration, then against the client calendar.
func slotValidate(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error) {
	var p slotValidateParams
	if err := json.Unmarshal(params, &p); err != nil || p.Start.IsZero() || p.End.IsZero() {
		return map[string]any{"ok": false, "reason": "invalid datetime format"}, nil
	}

	req, err := tc.Store.GetRequest(tc.CampaignID)
	if err != nil {
		return map[string]any{"ok": false, "reason": "campaign not found"}, nil
	}

	offer := models.SlotOffer{ProviderID: p.ProviderID, Start: p.Start, End: p.End}
	if !models.ValidOffer(offer, req) {
		return map[string]any{"ok": false, "reason": "slot is outside the requested range or duration"}, nil
	}

	free, err := tc.Calendar.IsFree(ctx, p.Start, p.End)
	if err != nil {
		return map[string]any{"ok": false, "reason": "calendar unavailable, cannot verify availability"}, nil
	}
	if !free {
		return map[string]any{"ok": false, "reason": "conflicts with client calendar"}, nil
	}
	return map[string]any{"ok": true, "reason": nil}, nil
}

type distanceCheckParams struct {
	ProviderID string `json:"provider_id"`
}

// distanceCheck returns estimated travel minutes to a provider.
func distanceCheck(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error) {
	var p distanceCheckParams
	if err := json.Unmarshal(params, &p); err != nil {
		return map[string]any{"minutes": -1, "error": "invalid parameters"}, nil
	}
	if p.ProviderID == "" {
		p.ProviderID = tc.ProviderID
	}

	provider, ok := tc.Store.GetProvider(tc.CampaignID, p.ProviderID)
	if !ok {
		return map[string]any{"minutes": -1, "error": "provider not found"}, nil
	}
	req, err := tc.Store.GetRequest(tc.CampaignID)
	if err != nil {
		return map[string]any{"minutes": -1, "error": "campaign not found"}, nil
	}

	minutes, err := tc.Distance.EstimateTravelMinutes(ctx, req.Location, provider)
	if err != nil {
		return map[string]any{"minutes": -1, "error": "distance estimate unavailable"}, nil
	}
	return map[string]any{"minutes": minutes}, nil
}

type logEventParams struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// logEvent records an agent-side event. Offer payloads inside the data field
// are picked up by the media-stream session via ExtractOffers.
func logEvent(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error) {
	var p logEventParams
	if err := json.Unmarshal(params, &p); err != nil {
		return map[string]any{"ok": false}, nil
	}

	data := string(p.Data)
	if len(data) > 500 {
		data = data[:500]
	}
	utils.GetLogger().Info("Agent log_event",
		zap.String("message", p.Message),
		zap.String("data", data),
		zap.String("campaign_id", tc.CampaignID),
		zap.String("provider_id", tc.ProviderID))
	return map[string]any{"ok": true}, nil
}

type providerLookupParams struct {
	Service    string   `json:"service"`
	Location   string   `json:"location"`
	ExcludeIDs []string `json:"exclude_ids"`
}

// providerLookup searches for alternative providers mid-conversation.
func providerLookup(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error) {
	var p providerLookupParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid provider_lookup parameters: %w", err)
	}

	if p.Service == "" || p.Location == "" {
		if req, err := tc.Store.GetRequest(tc.CampaignID); err == nil {
			if p.Service == "" {
				p.Service = req.Service
			}
			if p.Location == "" {
				p.Location = req.Location
			}
		}
	}

	found, err := tc.Providers.Search(ctx, p.Service, p.Location)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(p.ExcludeIDs))
	for _, id := range p.ExcludeIDs {
		excluded[id] = true
	}
	var out []models.ProviderPreview
	ids := make([]string, 0, 5)
	for _, prov := range found {
		if excluded[prov.ID] {
			continue
		}
		out = append(out, models.ProviderPreview{
			Name:    prov.Name,
			Rating:  prov.Rating,
			Address: prov.Address,
			Phone:   prov.Phone,
		})
		ids = append(ids, prov.ID)
		if len(out) >= 5 {
			break
		}
	}
	return map[string]any{"providers": out, "provider_ids": ids}, nil
}

type alternativesParams struct {
	Constraints struct {
		Service          string   `json:"service"`
		Location         string   `json:"location"`
		DateRangeStart   string   `json:"date_range_start"`
		ExcludeProviders []string `json:"exclude_providers"`
	} `json:"constraints"`
}

// alternativesPropose suggests other providers when the current one has no
// usable slots.
func alternativesPropose(ctx context.Context, params json.RawMessage, tc *ToolContext) (any, error) {
	var p alternativesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid alternatives_propose parameters: %w", err)
	}
	c := &p.Constraints

	if c.Service == "" || c.Location == "" {
		if req, err := tc.Store.GetRequest(tc.CampaignID); err == nil {
			if c.Service == "" {
				c.Service = req.Service
			}
			if c.Location == "" {
				c.Location = req.Location
			}
			if c.DateRangeStart == "" {
				c.DateRangeStart = req.DateRangeStart.Format(time.RFC3339)
			}
		}
	}

	found, err := tc.Providers.Search(ctx, c.Service, c.Location)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(c.ExcludeProviders))
	for _, id := range c.ExcludeProviders {
		excluded[id] = true
	}
	type suggestion struct {
		ProviderName          string  `json:"provider_name"`
		ProviderID            string  `json:"provider_id"`
		Rating                float64 `json:"rating"`
		EstimatedAvailability string  `json:"estimated_availability"`
	}
	var suggestions []suggestion
	for _, prov := range found {
		if excluded[prov.ID] {
			continue
		}
		suggestions = append(suggestions, suggestion{
			ProviderName:          prov.Name,
			ProviderID:            prov.ID,
			Rating:                prov.Rating,
			EstimatedAvailability: "Call to check",
		})
		if len(suggestions) >= 3 {
			break
		}
	}
	return map[string]any{"suggestions": suggestions}, nil
}

// ExtractOffers pulls slot offers out of a log_event payload, dropping
// entries that do not parse. Validation against the campaign request happens
// at session conclusion.
func ExtractOffers(params json.RawMessage, providerID string) []models.SlotOffer {
	var p logEventParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil
	}

	data := p.Data
	// The agent sometimes double-encodes the data field as a JSON string.
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		data = json.RawMessage(asString)
	}

	var payload struct {
		Offers []struct {
			Start      time.Time `json:"start"`
			End        time.Time `json:"end"`
			Notes      string    `json:"notes"`
			Confidence float64   `json:"confidence"`
		} `json:"offers"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	var offers []models.SlotOffer
	for _, o := range payload.Offers {
		confidence := o.Confidence
		if confidence <= 0 {
			confidence = 0.8
		}
		offers = append(offers, models.SlotOffer{
			ProviderID: providerID,
			Start:      o.Start,
			End:        o.End,
			Notes:      o.Notes,
			Confidence: confidence,
		})
	}
	return offers
}
