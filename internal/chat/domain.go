package chat

import "time"

// Channel is where the conversation happens.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
)

// BotIdleTimeout is how long after the last agent activity the bot takes
// the conversation back.
const BotIdleTimeout = 30 * time.Minute

// Session is one customer conversation. While AgentActive the bot stays
// silent; the sweep flips it back after the agent goes idle.
type Session struct {
	ID          int64      `json:"id"`
	CustomerID  *int64     `json:"customer_id,omitempty"`
	Channel     Channel    `json:"channel"`
	ContactKey  string     `json:"contact_key"`
	AgentActive bool       `json:"agent_active"`
	AgentID     *int64     `json:"agent_id,omitempty"`
	LastAgentAt *time.Time `json:"last_agent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
