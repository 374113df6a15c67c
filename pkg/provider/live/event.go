package live

// Event is one inbound item from the endpoint. The concrete types are
// [AudioChunk], [PartialTranscript], [TurnComplete], [ToolCall], [Grounding],
// [Interrupted], and [Closed].
type Event interface {
	isEvent()
}

// Direction tells which side of the conversation a transcript belongs to.
type Direction int

const (
	// Input is the user's speech as recognised by the endpoint.
	Input Direction = iota
	// Output is the model's own speech.
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// AudioChunk carries one piece of model speech. Data is still base64 encoded
// so that a malformed payload only affects this chunk.
type AudioChunk struct {
	Data     string
	MIMEType string
}

// PartialTranscript is an incremental transcript fragment.
type PartialTranscript struct {
	Direction Direction
	Text      string
}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// FunctionCall is a single tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolCall carries the tool invocations of one server message.
type ToolCall struct {
	Calls []FunctionCall
}

// GroundingLink is a web source cited by the model.
type GroundingLink struct {
	Title string
	URI   string
}

// Grounding carries the sources attached to part of a model turn.
type Grounding struct {
	Links []GroundingLink
}

// Interrupted reports that the user barged in and the model stopped
// generating. Queued model audio should be discarded.
type Interrupted struct{}

// Closed is the terminal event. Err is nil for a clean close and otherwise
// describes the failure, usually as a *[ConnectionError].
type Closed struct {
	Err error
}

func (AudioChunk) isEvent()        {}
func (PartialTranscript) isEvent() {}
func (TurnComplete) isEvent()      {}
func (ToolCall) isEvent()          {}
func (Grounding) isEvent()         {}
func (Interrupted) isEvent()       {}
func (Closed) isEvent()            {}
