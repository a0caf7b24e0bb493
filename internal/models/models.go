package models

// AskResponse is the success envelope returned to the client.
type AskResponse struct {
	Reply     string `json:"reply"`
	ModelUsed string `json:"modelUsed"`
}

// ErrorResponse is the failure envelope returned to the client.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Message represents a single conversational message sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage records token accounting information reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
