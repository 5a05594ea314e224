package conversation

// VoiceResponse is what the telephony side should do after one webhook.
// Exactly one of AudioURL and FallbackText is set when there is something
// to say. ContinueListening and EndCall are never both true.
type VoiceResponse struct {
	AudioURL     string
	FallbackText string
	// ClosingText follows the main segment on the final response.
	ClosingText       string
	ContinueListening bool
	EndCall           bool
}

// Speech is one segment to be spoken: a pre-synthesized asset, or text for
// the provider's built-in voice.
type Speech struct {
	AudioURL     string
	FallbackText string
}

func listen(s Speech) VoiceResponse {
	return VoiceResponse{
		AudioURL:          s.AudioURL,
		FallbackText:      s.FallbackText,
		ContinueListening: true,
	}
}

func hangup(s Speech, closing string) VoiceResponse {
	return VoiceResponse{
		AudioURL:     s.AudioURL,
		FallbackText: s.FallbackText,
		ClosingText:  closing,
		EndCall:      true,
	}
}
