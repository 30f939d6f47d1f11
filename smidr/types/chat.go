package types

import "smidr/smidr/services/provider"

type SubmitRequest struct {
	Message string `json:"message"`
}

// ChatRequest is a stateless turn; Conversation is the history the client kept.
type ChatRequest struct {
	Message      string                  `json:"message"`
	Conversation []provider.InputMessage `json:"conversation,omitempty"`
}

type ChatKitSessionResponse struct {
	ClientSecret string `json:"client_secret"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Sessions int    `json:"sessions"`
}
