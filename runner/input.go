package runner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Action selects what a run does.
type Action string

const (
	ActionConnect  Action = "connect"
	ActionSend     Action = "send"
	ActionSendBulk Action = "sendBulk"
)

// BulkMessage is one entry of a sendBulk run. Delay is in milliseconds.
type BulkMessage struct {
	To             string `json:"to"`
	Message        string `json:"message,omitempty"`
	Attachment     string `json:"attachment,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
	Caption        string `json:"caption,omitempty"`
	Delay          *int   `json:"delay,omitempty"`
}

// Input is the configuration of one run. Durations are in milliseconds;
// nil selects the runner default.
type Input struct {
	APIKey    string `json:"apiKey"`
	SessionID string `json:"sessionId,omitempty"`
	Action    Action `json:"action"`

	To             string `json:"to,omitempty"`
	Message        string `json:"message,omitempty"`
	Attachment     string `json:"attachment,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
	Caption        string `json:"caption,omitempty"`

	Messages []BulkMessage `json:"messages,omitempty"`

	DelayBetweenMessages     *int `json:"delayBetweenMessages,omitempty"`
	WaitForConnectionTimeout *int `json:"waitForConnectionTimeout,omitempty"`
}

// ParseInput decodes a JSON input, allowing comments and trailing commas.
func ParseInput(data []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal(jsonc.ToJSON(data), &in); err != nil {
		return Input{}, fmt.Errorf("runner: parsing input: %w", err)
	}
	return in, nil
}

// ReadInputFile reads and decodes an input file.
func ReadInputFile(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("runner: reading %s: %w", path, err)
	}
	in, err := ParseInput(data)
	if err != nil {
		return Input{}, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// ReadMessagesFile reads a JSON array of bulk messages.
func ReadMessagesFile(path string) ([]BulkMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runner: reading %s: %w", path, err)
	}
	var messages []BulkMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &messages); err != nil {
		return nil, fmt.Errorf("runner: parsing %s: %w", path, err)
	}
	return messages, nil
}
