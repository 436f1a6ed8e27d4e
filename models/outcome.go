package models

// CallOutcome is the terminal result of one call session. Exactly one outcome
// is recorded per provider per campaign.
type CallOutcome string

const (
	OutcomeSuccess          CallOutcome = "SUCCESS"
	OutcomeNoAnswer         CallOutcome = "NO_ANSWER"
	OutcomeBusy             CallOutcome = "BUSY"
	OutcomeVoicemail        CallOutcome = "VOICEMAIL"
	OutcomeFailed           CallOutcome = "FAILED"
	OutcomeNoSlots          CallOutcome = "NO_SLOTS"
	OutcomeCompletedNoMatch CallOutcome = "COMPLETED_NO_MATCH"
	OutcomeError            CallOutcome = "ERROR"
)

// ProviderCallResult is the tagged result of one provider call session.
type ProviderCallResult struct {
	ProviderID        string      `json:"provider_id"`
	CallSID           string      `json:"call_sid,omitempty"`
	Outcome           CallOutcome `json:"outcome"`
	Offers            []SlotOffer `json:"offers,omitempty"`
	TranscriptSnippet string      `json:"transcript_snippet,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}
