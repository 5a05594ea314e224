package conversation

import "errors"

var (
	// ErrDialogueFailed wraps DialogueEngine failures. The controller
	// recovers with Config.DegradedReply.
	ErrDialogueFailed = errors.New("dialogue generation failed")
	// ErrSynthesisFailed wraps SpeechSynthesizer failures. The affected
	// segment falls back to built-in speech.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// EndReason says why a conversation ended.
type EndReason string

const (
	EndKeyword    EndReason = "keyword"
	EndMaxTurns   EndReason = "max_turns"
	EndNoSpeech   EndReason = "no_speech"
	EndHangup     EndReason = "hangup"
	EndStoreError EndReason = "store_error"
)
