package models

import (
	"fmt"
	"strings"
)

// ActionType identifies what the backend has to do with an action.
// Numeric values are shared with the backend and must never change.
type ActionType int

const (
	ActionDelete           ActionType = 0
	ActionRename           ActionType = 1
	ActionLegalFlag        ActionType = 2
	ActionCreaterepo       ActionType = 3
	ActionUpdateComps      ActionType = 4
	ActionGenGPGKey        ActionType = 5
	ActionRawhideToRelease ActionType = 6
	ActionFork             ActionType = 7
	ActionUpdateModuleMD   ActionType = 8
	ActionBuildModule      ActionType = 9
	ActionCancelBuild      ActionType = 10
	ActionDeleteChroot     ActionType = 11
)

var actionTypeNames = map[ActionType]string{
	ActionDelete:           "delete",
	ActionRename:           "rename",
	ActionLegalFlag:        "legal-flag",
	ActionCreaterepo:       "createrepo",
	ActionUpdateComps:      "update_comps",
	ActionGenGPGKey:        "gen_gpg_key",
	ActionRawhideToRelease: "rawhide_to_release",
	ActionFork:             "fork",
	ActionUpdateModuleMD:   "update_module_md",
	ActionBuildModule:      "build_module",
	ActionCancelBuild:      "cancel_build",
	ActionDeleteChroot:     "delete_chroot",
}

func (t ActionType) String() string {
	if name, ok := actionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(t))
}

// ParseActionType accepts either the symbolic name or the numeric value.
func ParseActionType(s string) (ActionType, error) {
	for t, name := range actionTypeNames {
		if name == s || fmt.Sprint(int(t)) == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown action type: %q", s)
}

// BackendResult is the outcome reported by the backend for an action.
type BackendResult int

const (
	ResultWaiting BackendResult = 0
	ResultSuccess BackendResult = 1
	ResultFailure BackendResult = 2
)

func (r BackendResult) String() string {
	switch r {
	case ResultWaiting:
		return "waiting"
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ParseBackendResult accepts either the symbolic name or the numeric value.
func ParseBackendResult(s string) (BackendResult, error) {
	for _, r := range []BackendResult{ResultWaiting, ResultSuccess, ResultFailure} {
		if r.String() == s || fmt.Sprint(int(r)) == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown backend result: %q", s)
}

// BuildStatus is the state of a build chroot.
type BuildStatus int

const (
	StatusFailed    BuildStatus = 0
	StatusSucceeded BuildStatus = 1
	StatusCanceled  BuildStatus = 2
	StatusRunning   BuildStatus = 3
	StatusPending   BuildStatus = 4
	StatusSkipped   BuildStatus = 5
	StatusStarting  BuildStatus = 6
	StatusImporting BuildStatus = 7
	StatusForked    BuildStatus = 8
	StatusUnknown   BuildStatus = 1000
)

var buildStatusNames = map[BuildStatus]string{
	StatusFailed:    "failed",
	StatusSucceeded: "succeeded",
	StatusCanceled:  "canceled",
	StatusRunning:   "running",
	StatusPending:   "pending",
	StatusSkipped:   "skipped",
	StatusStarting:  "starting",
	StatusImporting: "importing",
	StatusForked:    "forked",
	StatusUnknown:   "unknown",
}

func (s BuildStatus) String() string {
	if name, ok := buildStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseBuildStatus accepts either the symbolic name or the numeric value.
func ParseBuildStatus(s string) (BuildStatus, error) {
	for st, name := range buildStatusNames {
		if name == strings.ToLower(s) || fmt.Sprint(int(st)) == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown build status: %q", s)
}

// PermissionState is the state of a builder or admin permission.
type PermissionState int

const (
	PermissionNothing  PermissionState = 0
	PermissionRequest  PermissionState = 1
	PermissionApproved PermissionState = 2
)

func (p PermissionState) String() string {
	switch p {
	case PermissionNothing:
		return "nothing"
	case PermissionRequest:
		return "request"
	case PermissionApproved:
		return "approved"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// ParsePermissionState accepts either the symbolic name or the numeric value.
func ParsePermissionState(s string) (PermissionState, error) {
	for _, p := range []PermissionState{PermissionNothing, PermissionRequest, PermissionApproved} {
		if p.String() == s || fmt.Sprint(int(p)) == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown permission state: %q", s)
}
