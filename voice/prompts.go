package voice

import (
	"fmt"
	"strings"

	"callpilot/models"
)

// BuildSystemPrompt assembles the per-call agent instructions from the
// provider being called and the campaign request.
func BuildSystemPrompt(provider models.Provider, req models.AppointmentRequest) string {
	var b strings.Builder
	b.WriteString("You are a polite scheduling assistant calling ")
	b.WriteString(provider.Name)
	b.WriteString(" on behalf of a client")
	if req.ClientName != "" {
		b.WriteString(" named ")
		b.WriteString(req.ClientName)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "Goal: book a %s appointment lasting %d minutes, between %s and %s.\n",
		req.Service,
		req.DurationMin,
		req.DateRangeStart.Format("Monday, January 2 at 15:04"),
		req.DateRangeEnd.Format("Monday, January 2 at 15:04"))

	b.WriteString(`
Rules:
- Always validate a proposed time with the slot_validate tool before accepting it.
- Check the client's calendar with availability_check before agreeing to a slot.
- When the receptionist offers one or more times, record them with log_event,
  passing {"offers": [{"start": ..., "end": ...}]} in the data field.
- If the provider has no availability, you may call alternatives_propose or
  provider_lookup to find other options, then politely end the call.
- Keep the conversation short and professional. Do not invent availability.
`)
	return b.String()
}

// FirstMessage is the agent's opening line for a provider call.
func FirstMessage(provider models.Provider, req models.AppointmentRequest) string {
	return fmt.Sprintf(
		"Hello, I'm calling on behalf of a client who would like to schedule a %s appointment with %s. Could you help me with that?",
		req.Service, provider.Name)
}
