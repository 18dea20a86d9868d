// Package comms provides point-to-point messaging between agents.
//
// Each agent owns a FIFO mailbox keyed by its ID. The in-memory channel
// covers single-process deployments; the Channel interface keeps the
// transport swappable.
package comms

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNoMessage is returned by Receive when the agent's mailbox is empty.
var ErrNoMessage = errors.New("comms: no message available")

// Message is one unit of agent-to-agent communication. Content is
// free-form; well-known message types are carried in Metadata["type"].
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`

	// SenderID and ReceiverID are agent IDs.
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`

	// Content is the message payload.
	Content any `json:"content"`

	// Metadata carries routing hints such as the message type.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a generated ID.
func NewMessage(senderID, receiverID string, content any, metadata map[string]any) Message {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Metadata:   metadata,
	}
}

// Type returns the message type from metadata, or "" when untyped.
func (m Message) Type() string {
	t, _ := m.Metadata["type"].(string)
	return t
}

// Channel is the transport contract for agent messaging.
type Channel interface {
	// Send delivers a message to the receiver's mailbox.
	Send(ctx context.Context, message Message) error

	// Receive pops the oldest message from the agent's mailbox, returning
	// ErrNoMessage when the mailbox is empty. It does not block.
	Receive(ctx context.Context, agentID string) (Message, error)

	// Drain removes and returns all queued messages for the agent, oldest
	// first.
	Drain(ctx context.Context, agentID string) ([]Message, error)
}

// InMemoryChannel keeps per-agent FIFO mailboxes guarded by a mutex.
type InMemoryChannel struct {
	mu        sync.Mutex
	mailboxes map[string][]Message
}

// NewInMemoryChannel creates an empty channel.
func NewInMemoryChannel() *InMemoryChannel {
	return &InMemoryChannel{mailboxes: make(map[string][]Message)}
}

// Send appends the message to the receiver's mailbox.
func (c *InMemoryChannel) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mailboxes[message.ReceiverID] = append(c.mailboxes[message.ReceiverID], message)
	return nil
}

// Receive pops the oldest message for the agent.
func (c *InMemoryChannel) Receive(ctx context.Context, agentID string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	mailbox := c.mailboxes[agentID]
	if len(mailbox) == 0 {
		return Message{}, ErrNoMessage
	}
	message := mailbox[0]
	c.mailboxes[agentID] = mailbox[1:]
	return message, nil
}

// Drain removes and returns every queued message for the agent.
func (c *InMemoryChannel) Drain(ctx context.Context, agentID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	mailbox := c.mailboxes[agentID]
	c.mailboxes[agentID] = nil
	return mailbox, nil
}
