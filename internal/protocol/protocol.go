// Package protocol defines the JSON wire messages exchanged with clients.
// Every frame in both directions is a {type, ...} object.
package protocol

// Inbound message types.
const (
	InTextInput        = "text_input"
	InMicAudioData     = "mic_audio_data"
	InRawAudioData     = "raw_audio_data"
	InMicAudioEnd      = "mic_audio_end"
	InInterruptSignal  = "interrupt_signal"
	InFetchHistoryList = "fetch_history_list"
	InFetchHistory     = "fetch_history"
	InCreateNewHistory = "create_new_history"
	InClearHistory     = "clear_history"
	InSwitchConfig     = "switch_config"
	InHeartbeat        = "heartbeat"
)

// Control texts carried by outbound control frames.
const (
	ControlStartMic          = "start-mic"
	ControlStopMic           = "stop-mic"
	ControlMicAudioEnd       = "mic-audio-end"
	ControlConversationStart = "conversation-start"
	ControlConversationEnd   = "conversation-end"
	ControlInterrupted       = "interrupted"
	ControlNoAudioData       = "no-audio-data"
)

// Inbound is the envelope decoded from every client frame. Fields are
// populated per the message type; unknown types are answered with an error
// frame.
type Inbound struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	Audio      []float64      `json:"audio,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	FromName   string         `json:"from_name,omitempty"`
	HistoryUID string         `json:"history_uid,omitempty"`
	File       string         `json:"file,omitempty"`
}

// ConnectionEstablished greets a new session.
type ConnectionEstablished struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	SID     string `json:"sid"`
}

// NewConnectionEstablished returns the greeting for sid.
func NewConnectionEstablished(sid string) ConnectionEstablished {
	return ConnectionEstablished{Type: "connection-established", Message: "connected", SID: sid}
}

// Control is a server-driven control frame.
type Control struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewControl returns a control frame carrying text.
func NewControl(text string) Control {
	return Control{Type: "control", Text: text}
}

// Transcript carries the user's recognized speech.
type Transcript struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// NewTranscript returns a final transcript frame.
func NewTranscript(text string) Transcript {
	return Transcript{Type: "transcript", Text: text, IsFinal: true}
}

// Text is one streaming AI text delta. An empty Text with FromName set
// marks end of the streamed message.
type Text struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Seq      int    `json:"seq"`
	FromName string `json:"from_name,omitempty"`
}

// Audio carries synthesized speech without an expression timeline.
type Audio struct {
	Type      string `json:"type"`
	AudioData string `json:"audio_data"`
	Format    string `json:"format"`
	Seq       int    `json:"seq"`
}

// ExpressionSegment is one entry of an expression timeline on the wire.
type ExpressionSegment struct {
	Emotion   string  `json:"emotion"`
	Time      float64 `json:"time"`
	Duration  float64 `json:"duration"`
	Intensity float64 `json:"intensity"`
}

// Expressions is the timeline block of an audio_with_expression frame.
type Expressions struct {
	Segments      []ExpressionSegment `json:"segments"`
	TotalDuration float64             `json:"total_duration"`
}

// AudioWithExpression carries synthesized speech plus its expression
// timeline and volume envelope.
type AudioWithExpression struct {
	Type        string      `json:"type"`
	AudioData   string      `json:"audio_data"`
	Format      string      `json:"format"`
	Volumes     []float64   `json:"volumes"`
	Expressions Expressions `json:"expressions"`
	Text        string      `json:"text"`
	Seq         int         `json:"seq"`
}

// Expression is a standalone avatar expression change.
type Expression struct {
	Type       string `json:"type"`
	Expression string `json:"expression"`
	Timestamp  int64  `json:"timestamp"`
}

// Error reports a turn or protocol failure to the client.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Seq     int    `json:"seq,omitempty"`
}

// NewError returns an error frame.
func NewError(message string) Error {
	return Error{Type: "error", Message: message}
}

// HistorySummary is one entry in a history-list frame.
type HistorySummary struct {
	UID     string `json:"uid"`
	Preview string `json:"preview"`
}

// HistoryList enumerates stored conversation histories.
type HistoryList struct {
	Type      string           `json:"type"`
	Histories []HistorySummary `json:"histories"`
}

// HistoryMessage is one stored exchange line.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryData carries one full conversation history.
type HistoryData struct {
	Type     string           `json:"type"`
	Messages []HistoryMessage `json:"messages"`
}

// HistoryCleared confirms a clear_history request.
type HistoryCleared struct {
	Type string `json:"type"`
}

// NewHistoryCreated confirms a create_new_history request.
type NewHistoryCreated struct {
	Type       string `json:"type"`
	HistoryUID string `json:"history_uid"`
}

// HeartbeatAck answers a heartbeat.
type HeartbeatAck struct {
	Type string `json:"type"`
}
