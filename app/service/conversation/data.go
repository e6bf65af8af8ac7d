package conversation

import "time"

// Stage is the scripted position of a conversation. It only advances
// through explicit user actions or through the lifecycle callbacks
// (inactivity timeout, terminal request failure).
type Stage string

const (
	StageWelcome        Stage = "welcome"
	StageOptionSelect   Stage = "option-select"
	StageParameterEntry Stage = "parameter-entry"
	StageInFlight       Stage = "in-flight"
	StageResult         Stage = "result"
	StageEnd            Stage = "end"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageKind lets the transcript tell lifecycle notices apart from
// ordinary chat content. Connection notices are deduplicated, retry
// notices are replaced, terminal notices close the conversation.
type MessageKind string

const (
	KindChat         MessageKind = "chat"
	KindConnError    MessageKind = "connection-error"
	KindConnRestored MessageKind = "connection-restored"
	KindRetryNotice  MessageKind = "retry-notice"
	KindTerminal     MessageKind = "terminal"
)

type Message struct {
	ID      string      `json:"id"`
	Role    Role        `json:"role"`
	Kind    MessageKind `json:"kind"`
	Content string      `json:"content"`
	At      time.Time   `json:"at"`
}

type menuOption struct {
	Key   string
	Label string
	Query string
}

var menuOptions = []menuOption{
	{Key: "1", Label: "Usage summary", Query: "usage summary report"},
	{Key: "2", Label: "Patient visit trends", Query: "patient visit trends"},
	{Key: "3", Label: "Programme outcomes", Query: "programme outcome statistics"},
}

const (
	maxDurationMonths = 24

	msgWelcome          = "Welcome to the CarePulse analytics assistant."
	msgDurationPrompt   = "For how many months should the report cover? (1-24)"
	msgInvalidOption    = "Please pick one of the listed options by its number."
	msgInvalidDuration  = "Please enter a number of months between 1 and 24."
	msgWorking          = "Working on your report, one moment..."
	msgInProgress       = "Your previous request is still being processed."
	msgCouldntProcess   = "Sorry, I couldn't process the response from the analytics service. Please try again."
	msgConnLost         = "Connection to the analytics service was lost."
	msgConnRestored     = "Connection to the analytics service was restored."
	msgInactivityEnd    = "This session ended due to inactivity. Start a new conversation to continue."
	msgStopped          = "Request cancelled. Pick an option to continue."
	msgServiceDown      = "The analytics service is unavailable right now. Please try again later."
	msgAuthFailure      = "Your session is no longer authorized. Please sign in again."
	msgConversationOver = "This conversation has ended. Start a new one to continue."
)
