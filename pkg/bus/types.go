package bus

// Inbound is one message observed on the platform, reduced to the fields the
// termination watcher needs.
type Inbound struct {
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	InvokerID   string `json:"invoker_id,omitempty"` // set when the message is a command-interaction echo
	FromBot     bool   `json:"from_bot"`
	Interaction bool   `json:"interaction"`
	Content     string `json:"content"`
}
