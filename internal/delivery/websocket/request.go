package websocket

const (
	RequestJoin   = "join"
	RequestSend   = "send"
	RequestRead   = "read"
	RequestDelete = "delete"
)

// Request is one client frame. Only the fields of its Type are read.
type Request struct {
	Type string `json:"type"`

	// join
	UserId string `json:"userId,omitempty"`

	// send
	RecipientId         string  `json:"recipientId,omitempty"`
	Content             string  `json:"content,omitempty"`
	SharedReviewRef     *string `json:"sharedReviewRef,omitempty"`
	SharedDiscussionRef *string `json:"sharedDiscussionRef,omitempty"`
	TempId              string  `json:"tempId,omitempty"`

	// read
	OtherUserId string `json:"otherUserId,omitempty"`

	// delete
	MessageId string `json:"messageId,omitempty"`
}
