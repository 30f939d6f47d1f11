package provider

// RunStatus is the provider's run lifecycle state.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether no further transition will be observed.
// requires_action counts as terminal here: this proxy never submits tool outputs,
// so such a run can only end by expiring.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return false
	}
	return true
}

type Thread struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Run struct {
	ID          string    `json:"id"`
	Object      string    `json:"object"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      RunStatus `json:"status"`
	LastError   *RunError `json:"last_error,omitempty"`
	CreatedAt   int64     `json:"created_at"`
}

type TextValue struct {
	Value string `json:"value"`
}

// ContentBlock is one entry of a thread message's content list. Only
// text blocks carry Text; image_file and friends are kept as Type only.
type ContentBlock struct {
	Type string     `json:"type"`
	Text *TextValue `json:"text,omitempty"`
}

type Message struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	ThreadID  string         `json:"thread_id"`
	RunID     string         `json:"run_id,omitempty"`
	Role      string         `json:"role"`
	Content   []ContentBlock `json:"content"`
	CreatedAt int64          `json:"created_at"`
}

type MessageList struct {
	Object  string    `json:"object"`
	Data    []Message `json:"data"`
	HasMore bool      `json:"has_more"`
}

// InputMessage is one turn of caller-owned history sent to /responses.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseRequest struct {
	AgentID  string            `json:"agent_id,omitempty"`
	Model    string            `json:"model,omitempty"`
	Input    []InputMessage    `json:"input"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutputContent is a content block of a /responses output item. Text is a plain
// string there, unlike thread messages.
type OutputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type OutputItem struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content []OutputContent `json:"content"`
}

type Response struct {
	ID     string       `json:"id"`
	Object string       `json:"object"`
	Status string       `json:"status"`
	Output []OutputItem `json:"output"`
}

type ChatKitSession struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	ExpiresAt    int64  `json:"expires_at"`
}
