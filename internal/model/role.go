package model

import (
	"fmt"
	"strings"
)

// Role is a named bundle of privileges used when minting tokens.
type Role struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Privileges  []string `json:"privileges"`
}

// Role codes as constants
const (
	RoleSyncAdmin    = "SYNC_ADMIN"
	RoleSyncOperator = "SYNC_OPERATOR"
	RoleViewer       = "VIEWER"
)

// DefaultRoles defines the roles the token command understands
var DefaultRoles = []Role{
	{
		Code:        RoleSyncAdmin,
		Name:        "Sync Administrator",
		Description: "Every privilege, including scheduler control and pricebook edits",
		Privileges:  []string{PrivSyncView, PrivSyncTrigger, PrivSyncResolve, PrivSchedulerControl, PrivPricebookUpdate},
	},
	{
		Code:        RoleSyncOperator,
		Name:        "Sync Operator",
		Description: "Triggers runs and resolves conflicts",
		Privileges:  []string{PrivSyncView, PrivSyncTrigger, PrivSyncResolve},
	},
	{
		Code:        RoleViewer,
		Name:        "Viewer",
		Description: "Read-only access to status, logs and conflicts",
		Privileges:  []string{PrivSyncView},
	},
}

// FindRole looks a role up by code, case-insensitively.
func FindRole(code string) (Role, error) {
	for _, r := range DefaultRoles {
		if strings.EqualFold(r.Code, strings.TrimSpace(code)) {
			return r, nil
		}
	}
	return Role{}, fmt.Errorf("unknown role %q", code)
}
