package engagement

// ChannelShowPrompt carries ShowPrompt payloads.
const ChannelShowPrompt = "show-bookmark-prompt"

// Source says what asked for the prompt.
type Source string

const (
	SourceDwell  Source = "dwell"
	SourceSnooze Source = "snooze"
	SourceQuery  Source = "query"
	SourceDebug  Source = "debug"
)

// ShowPrompt is the payload of ChannelShowPrompt.
type ShowPrompt struct {
	Source Source `json:"source"`
	Route  string `json:"route,omitempty"`
	// Override lets a debug trigger render even when the visitor dismissed
	// the prompt or confirmed a bookmark. Only DebugCommands sets it.
	Override bool `json:"override,omitempty"`
}
