package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	usageFile = "usage.json"

	dayLayout = "2006-01-02"
)

// UsageState records how many questions a session asked on a given day.
type UsageState struct {
	// SessionID is the session the count belongs to.
	SessionID string `json:"session_id"`

	// Day is the local calendar day of the count, formatted as 2006-01-02.
	Day string `json:"day"`

	// Asked is the number of questions admitted on Day.
	Asked int `json:"asked"`
}

// AskedOn returns the count for sessionID on the day containing now, or 0
// when the state belongs to another session or day.
func (s *UsageState) AskedOn(sessionID string, now time.Time) int {
	if s == nil || s.SessionID != sessionID || s.Day != now.Format(dayLayout) {
		return 0
	}
	return s.Asked
}

// NewUsageState returns the state for sessionID having asked n questions on
// the day containing now.
func NewUsageState(sessionID string, n int, now time.Time) *UsageState {
	return &UsageState{
		SessionID: sessionID,
		Day:       now.Format(dayLayout),
		Asked:     n,
	}
}

// LoadUsageState loads the usage state from a target .chatline/usage.json.
// Returns nil, nil if no usage state exists or no directory was resolved.
func (m *Manager) LoadUsageState(overrideDir string) (*UsageState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, usageFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading usage state: %w", err)
	}

	state := &UsageState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing usage state: %w", err)
	}

	return state, nil
}

// SaveUsageState persists the usage state to a target .chatline/usage.json,
// creating the directory if needed.
func (m *Manager) SaveUsageState(state *UsageState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil usage state")
	}

	dir, err := m.Create(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling usage state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, usageFile), data, 0o600); err != nil {
		return fmt.Errorf("writing usage state: %w", err)
	}

	return nil
}

// ClearUsageState removes the usage state file.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearUsageState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return err
	}

	if err := os.Remove(filepath.Join(dir, usageFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing usage state: %w", err)
	}

	return nil
}
