// Package ai provides a provider-agnostic AI gateway with ordered fallback.
package ai

import "context"

// TaskType defines the kind of generation task, used for logging and budgets.
type TaskType int

const (
	TaskDiagnostic TaskType = iota
	TaskGrading
	TaskSyllabus
	TaskLesson
)

func (t TaskType) String() string {
	switch t {
	case TaskDiagnostic:
		return "diagnostic"
	case TaskGrading:
		return "grading"
	case TaskSyllabus:
		return "syllabus"
	case TaskLesson:
		return "lesson"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// JSON asks the provider for a single JSON object using its native
	// structured output switch where one exists.
	JSON bool `json:"json,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}

// jsonInstruction is appended to the system prompt of providers that have no
// native JSON response switch.
const jsonInstruction = "Respond with a single JSON object and nothing else. Do not wrap it in markdown."

// systemPrompt returns the concatenated system messages of req.
func systemPrompt(req CompletionRequest) string {
	var out string
	for _, m := range req.Messages {
		if m.Role != "system" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}
