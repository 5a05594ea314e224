// Package transcript holds the dialogue history types shared by the call
// session store, the conversation controller and the LLM clients.
package transcript

// Role tags the speaker of a Turn.
type Role string

const (
	RoleSystem Role = "system" // persona instructions, always the first turn
	RoleAgent  Role = "agent"  // line spoken by the automated persona
	RoleCaller Role = "caller" // transcribed speech from the human
)

// Turn is one utterance in a call.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is the chronological history of a call.
type Transcript []Turn

func System(text string) Turn { return Turn{Role: RoleSystem, Text: text} }
func Agent(text string) Turn  { return Turn{Role: RoleAgent, Text: text} }
func Caller(text string) Turn { return Turn{Role: RoleCaller, Text: text} }

// New builds the opening transcript of a call: the persona instructions
// followed by the greeting.
func New(persona, greeting string) Transcript {
	return Transcript{System(persona), Agent(greeting)}
}

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// SystemPrompt returns the persona instructions, or "" if the transcript
// does not start with a system turn.
func (t Transcript) SystemPrompt() string {
	if len(t) > 0 && t[0].Role == RoleSystem {
		return t[0].Text
	}
	return ""
}

// Dialogue returns the turns after the system prompt.
func (t Transcript) Dialogue() Transcript {
	if len(t) > 0 && t[0].Role == RoleSystem {
		return t[1:]
	}
	return t
}

// CallerTurns counts the turns spoken by the human.
func (t Transcript) CallerTurns() int {
	n := 0
	for _, turn := range t {
		if turn.Role == RoleCaller {
			n++
		}
	}
	return n
}

// Valid reports whether t has the shape of a live call: a system turn
// followed by the agent greeting.
func (t Transcript) Valid() bool {
	return len(t) >= 2 && t[0].Role == RoleSystem && t[1].Role == RoleAgent
}
