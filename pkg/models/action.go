package models

import (
	"encoding/json"
	"fmt"
)

// Action is an instruction queued for the backend
type Action struct {
	ID         int64         `json:"id"`
	ActionType ActionType    `json:"action_type"`
	ObjectType string        `json:"object_type"`
	ObjectID   int64         `json:"object_id"`
	OldValue   string        `json:"old_value"`
	NewValue   string        `json:"new_value"`
	Data       string        `json:"data"`
	Result     BackendResult `json:"result"`
	Message    string        `json:"message"`
	CreatedOn  int64         `json:"created_on"`
	EndedOn    *int64        `json:"ended_on"`
}

// SetData serializes v into the data field
func (a *Action) SetData(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal action data: %w", err)
	}
	a.Data = string(data)
	return nil
}

// DecodeData unmarshals the data field into v
func (a *Action) DecodeData(v interface{}) error {
	if a.Data == "" {
		return nil
	}
	return json.Unmarshal([]byte(a.Data), v)
}

// IsBlocking reports whether the action prevents further changes of its project
func (a *Action) IsBlocking() bool {
	return a.Result == ResultWaiting &&
		(a.ActionType == ActionDelete || a.ActionType == ActionRename)
}

// ActionUpdate is what the backend reports back for a single action
type ActionUpdate struct {
	ID      int64         `json:"id"`
	Result  BackendResult `json:"result"`
	Message string        `json:"message"`
	EndedOn int64         `json:"ended_on"`
}

// BuildChrootUpdate is what the backend reports back for a single build chroot
type BuildChrootUpdate struct {
	BuildID   int64       `json:"id"`
	Chroot    string      `json:"chroot"`
	Status    BuildStatus `json:"status"`
	StartedOn int64       `json:"started_on,omitempty"`
	EndedOn   int64       `json:"ended_on,omitempty"`
	GitHash   string      `json:"git_hash,omitempty"`
}

// Stats is a snapshot of farm-wide counters
type Stats struct {
	Projects        int                   `json:"projects"`
	DeletedProjects int                   `json:"deleted_projects"`
	Builds          int                   `json:"builds"`
	ChrootsByState  map[BuildStatus]int   `json:"chroots_by_state"`
	ActionsByState  map[BackendResult]int `json:"actions_by_state"`
	Users           int                   `json:"users"`
}
