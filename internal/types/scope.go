package types

import (
	"encoding/json"
	"fmt"
)

// ScopeLevel represents the hierarchy level at which a configuration
// entity (Rule, Workflow, Persona) applies. Levels are ordered from most
// specific (USER) to least specific (DEFAULT).
type ScopeLevel string

const (
	ScopeUser    ScopeLevel = "USER"
	ScopeProject ScopeLevel = "PROJECT"
	ScopeTeam    ScopeLevel = "TEAM"
	ScopeOrg     ScopeLevel = "ORG"
	ScopeDefault ScopeLevel = "DEFAULT"
)

// ScopeOrder lists all scope levels from most specific to least specific.
// Resolution walks this slice in order.
var ScopeOrder = []ScopeLevel{ScopeUser, ScopeProject, ScopeTeam, ScopeOrg, ScopeDefault}

// String returns the string representation of ScopeLevel
func (s ScopeLevel) String() string {
	return string(s)
}

// IsValid checks if the ScopeLevel is a valid value
func (s ScopeLevel) IsValid() bool {
	switch s {
	case ScopeUser, ScopeProject, ScopeTeam, ScopeOrg, ScopeDefault:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler
func (s ScopeLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler
func (s *ScopeLevel) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	level := ScopeLevel(str)
	if !level.IsValid() {
		return fmt.Errorf("invalid scope level: %s", str)
	}

	*s = level
	return nil
}

// ScopeContext identifies the execution context a resolution runs under.
// Any subset of the IDs may be present; levels whose ID is absent are
// skipped during resolution (DEFAULT needs no ID and is always eligible).
type ScopeContext struct {
	UserID    ID `json:"userId,omitempty" mapstructure:"userId"`
	ProjectID ID `json:"projectId,omitempty" mapstructure:"projectId"`
	TeamID    ID `json:"teamId,omitempty" mapstructure:"teamId"`
	OrgID     ID `json:"orgId,omitempty" mapstructure:"orgId"`
}

// EntityID returns the context ID for the given scope level and whether
// the level is eligible for resolution. DEFAULT is always eligible with
// an empty entity ID.
func (c ScopeContext) EntityID(level ScopeLevel) (ID, bool) {
	switch level {
	case ScopeUser:
		return c.UserID, !c.UserID.IsZero()
	case ScopeProject:
		return c.ProjectID, !c.ProjectID.IsZero()
	case ScopeTeam:
		return c.TeamID, !c.TeamID.IsZero()
	case ScopeOrg:
		return c.OrgID, !c.OrgID.IsZero()
	case ScopeDefault:
		return "", true
	default:
		return "", false
	}
}

// IsEmpty reports whether no scope IDs are set at all.
func (c ScopeContext) IsEmpty() bool {
	return c.UserID.IsZero() && c.ProjectID.IsZero() && c.TeamID.IsZero() && c.OrgID.IsZero()
}

// TaskLevel represents the granularity of a Task node in the work hierarchy.
type TaskLevel string

const (
	TaskLevelProject   TaskLevel = "PROJECT"
	TaskLevelMilestone TaskLevel = "MILESTONE"
	TaskLevelTask      TaskLevel = "TASK"
	TaskLevelSubtask   TaskLevel = "SUBTASK"
)

// String returns the string representation of TaskLevel
func (l TaskLevel) String() string {
	return string(l)
}

// IsValid checks if the TaskLevel is a valid value
func (l TaskLevel) IsValid() bool {
	switch l {
	case TaskLevelProject, TaskLevelMilestone, TaskLevelTask, TaskLevelSubtask:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler
func (l TaskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(l))
}

// UnmarshalJSON implements json.Unmarshaler
func (l *TaskLevel) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	level := TaskLevel(str)
	if !level.IsValid() {
		return fmt.Errorf("invalid task level: %s", str)
	}

	*l = level
	return nil
}
