package relay

// Wire event types. Every frame on the socket is an Envelope whose Type is
// one of these.
const (
	// inbound
	EventJoinSession        = "join_session"
	EventSendMessage        = "send_message"
	EventTransferToHuman    = "transfer_to_human"
	EventAgentTyping        = "agent_typing"
	EventAgentStoppedTyping = "agent_stopped_typing"
	EventAdminOnline        = "admin_online"
	EventAdminOffline       = "admin_offline"

	// outbound
	EventNewMessage      = "new_message"
	EventMessageSent     = "message_sent"
	EventNewTransfer     = "new_transfer"
	EventChatTransferred = "chat_transferred"
	EventError           = "error"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Envelope is the JSON frame exchanged with browser and admin clients.
type Envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}
