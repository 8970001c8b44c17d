package enums

import (
	"fmt"
	"strings"
)

// StaffRole mirrors the roles the backend stamps into access tokens.
type StaffRole string

const (
	StaffRoleAdmin   StaffRole = "admin"
	StaffRoleManager StaffRole = "manager"
	StaffRoleCashier StaffRole = "cashier"
	StaffRoleStaff   StaffRole = "staff"
)

var validStaffRoles = []StaffRole{
	StaffRoleAdmin,
	StaffRoleManager,
	StaffRoleCashier,
	StaffRoleStaff,
}

// IsValid reports whether the value matches a known staff role.
func (r StaffRole) IsValid() bool {
	for _, candidate := range validStaffRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseStaffRole normalizes case before matching.
func ParseStaffRole(value string) (StaffRole, error) {
	normalized := StaffRole(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid staff role %q", value)
}
