package telephony

import "github.com/twilio/twilio-go/twiml"

// BuildConnectTwiML returns TwiML that speaks a short disclosure and then
// connects the bidirectional media stream. streamURL must be the full wss://
// URL of the stream endpoint including campaign/provider correlation
// parameters.
func BuildConnectTwiML(streamURL string) (string, error) {
	say := &twiml.VoiceSay{
		Message: "This is an automated assistant calling to schedule an appointment.",
		Voice:   "Polly.Joanna",
	}

	stream := &twiml.VoiceStream{
		Url: streamURL,
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	return twiml.Voice([]twiml.Element{say, connect})
}
