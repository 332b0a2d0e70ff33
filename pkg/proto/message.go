// Package proto defines the message protocol and task types exchanged
// between agents and the orchestrator.
package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known agent identifiers. Agents are registered under these IDs and
// messages are routed by them.
const (
	AgentOrchestrator = "orchestrator"
	AgentUser         = "user"
	AgentPlanner      = "planner"
	AgentCoder        = "coder"
	AgentTester       = "tester"
	AgentReviewer     = "reviewer"
	AgentUserProxy    = "user_proxy"
)

// Metadata keys carried on messages. Agents signal structured outcomes
// through these keys rather than side channels.
const (
	KeyTaskID      = "task_id"
	KeyPlanSteps   = "plan_steps"
	KeyFiles       = "files"
	KeyTestsPassed = "tests_passed"
	KeyTestSummary = "test_summary"
	KeyApproved    = "approved"
	KeyComments    = "comments"
	KeyApprovalID  = "approval_id"
	KeyFailure     = "failure"
	KeyFailedAgent = "failed_agent"
	KeyIteration   = "iteration"
)

// Message is the unit of communication between agents. A message is
// immutable once enqueued; agents receive it by value of contract and must
// not modify it.
type Message struct {
	ID        string         `json:"id"`
	ParentID  string         `json:"parent_id,omitempty"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Timestamp time.Time      `json:"timestamp"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(from, to, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
		Content:   content,
		Metadata:  make(map[string]any),
	}
}

// Reply creates a message addressed back to the sender of m, carrying m's ID
// as the parent for correlation.
func (m *Message) Reply(from, content string) *Message {
	reply := NewMessage(from, m.From, content)
	reply.ParentID = m.ID
	return reply
}

// SetMeta sets a metadata value, allocating the map if needed.
func (m *Message) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Meta returns the raw metadata value for key.
func (m *Message) Meta(key string) (any, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	v, ok := m.Metadata[key]
	return v, ok
}

// MetaString returns a string metadata value.
func (m *Message) MetaString(key string) (string, bool) {
	v, ok := m.Meta(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MetaBool returns a boolean metadata value.
func (m *Message) MetaBool(key string) (bool, bool) {
	v, ok := m.Meta(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// MetaStrings returns a string-slice metadata value. JSON round-trips decode
// slices as []any, so both representations are accepted.
func (m *Message) MetaStrings(key string) ([]string, bool) {
	v, ok := m.Meta(key)
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	clone := &Message{
		ID:        m.ID,
		ParentID:  m.ParentID,
		From:      m.From,
		To:        m.To,
		Timestamp: m.Timestamp,
		Content:   m.Content,
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// Validate checks the fields required for routing.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}
	if m.From == "" {
		return fmt.Errorf("message sender is required")
	}
	if m.To == "" {
		return fmt.Errorf("message recipient is required")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("message timestamp is required")
	}
	return nil
}

// ToJSON serializes the message for the event log and snapshots.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON deserializes a message produced by ToJSON.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}
