package websocket

type JoinedPayload struct {
	UserId       string `json:"userId"`
	ConnectionId string `json:"connectionId"`
}

// SendFailedPayload hands the draft back so the client can restore its input.
type SendFailedPayload struct {
	TempId              string  `json:"tempId,omitempty"`
	RecipientId         string  `json:"recipientId"`
	Content             string  `json:"content"`
	SharedReviewRef     *string `json:"sharedReviewRef,omitempty"`
	SharedDiscussionRef *string `json:"sharedDiscussionRef,omitempty"`
	Reason              string  `json:"reason"`
}

type ErrorPayload struct {
	Request string `json:"request,omitempty"`
	Message string `json:"message"`
}
