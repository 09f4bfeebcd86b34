package proxy

import "encoding/json"

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat constrains the completion's output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the OpenAI-compatible chat completion request.
// Fields not explicitly modeled are sent from Extra.
type ChatRequest struct {
	Model          string                     `json:"model"`
	Messages       []Message                  `json:"messages"`
	Temperature    *float64                   `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat            `json:"response_format,omitempty"`
	Extra          map[string]json.RawMessage `json:"-"`
}

func (r ChatRequest) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		m[k] = v
	}
	if r.Model != "" {
		m["model"] = r.Model
	}
	if r.Messages != nil {
		m["messages"] = r.Messages
	}
	if r.Temperature != nil {
		m["temperature"] = *r.Temperature
	}
	if r.ResponseFormat != nil {
		m["response_format"] = r.ResponseFormat
	}
	return json.Marshal(m)
}

// ChatResponse is the non-streaming completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// errorBody is OpenRouter's error envelope.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Model represents a model entry returned by the /models endpoint.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ModelList is the response from /models.
type ModelList struct {
	Data []Model `json:"data"`
}
