package gateway

// Message roles understood by chat-completion APIs.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat message sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is a validated completion returned by the gateway. A nil *Result in
// a batch map means the model failed and contributed nothing.
type Result struct {
	Content          string      `json:"content"`
	ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
}

// chatRequest is the request payload for the chat completions endpoint.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// chatResponse is the wire shape of a chat completions response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string      `json:"content"`
			ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}
