package session

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// snapshot is the on-disk form of the manager's sessions. Best-effort
// resume support; not a durability contract.
type snapshot struct {
	Sessions []sessionSnapshot `yaml:"sessions"`
}

type sessionSnapshot struct {
	Key       string            `yaml:"key"`
	CreatedAt time.Time         `yaml:"created_at"`
	Messages  []messageSnapshot `yaml:"messages"`
}

type messageSnapshot struct {
	Role       string         `yaml:"role"`
	Content    string         `yaml:"content"`
	ToolCallID string         `yaml:"tool_call_id,omitempty"`
	ToolName   string         `yaml:"tool_name,omitempty"`
	ToolCalls  []toolCallSnap `yaml:"tool_calls,omitempty"`
	Timestamp  time.Time      `yaml:"timestamp"`
}

type toolCallSnap struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
}

// SaveSnapshot writes all sessions to path as YAML.
func (m *Manager) SaveSnapshot(path string) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	snap := snapshot{Sessions: make([]sessionSnapshot, 0, len(keys))}
	for _, key := range keys {
		s := m.sessions[key]
		ss := sessionSnapshot{Key: s.key, CreatedAt: s.createdAt}
		for _, msg := range s.Messages() {
			ms := messageSnapshot{
				Role:       string(msg.Role),
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				ToolName:   msg.ToolName,
				Timestamp:  msg.Timestamp,
			}
			for _, tc := range msg.ToolCalls {
				ms.ToolCalls = append(ms.ToolCalls, toolCallSnap(tc))
			}
			ss.Messages = append(ss.Messages, ms)
		}
		snap.Sessions = append(snap.Sessions, ss)
	}
	m.mu.RUnlock()

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("session.Manager.SaveSnapshot: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("session.Manager.SaveSnapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores sessions from a snapshot file. A missing file is
// not an error; loaded sessions replace same-keyed live ones.
func (m *Manager) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session.Manager.LoadSnapshot: %w", err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("session.Manager.LoadSnapshot: unmarshal: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ss := range snap.Sessions {
		s := New(ss.Key)
		s.createdAt = ss.CreatedAt
		for _, ms := range ss.Messages {
			msg := Message{
				Role:       Role(ms.Role),
				Content:    ms.Content,
				ToolCallID: ms.ToolCallID,
				ToolName:   ms.ToolName,
			}
			for _, tc := range ms.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, ToolCall(tc))
			}
			s.append(msg)
			// append stamps fresh IDs/timestamps; restore the recorded time.
			s.messages[len(s.messages)-1].Timestamp = ms.Timestamp
		}
		m.sessions[ss.Key] = s
	}
	return nil
}
