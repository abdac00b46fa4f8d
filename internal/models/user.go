package models

import (
	"time"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleMaintenance Role = "maintenance"
	RoleTechnician  Role = "technician"
	RoleViewer      Role = "viewer"
	RoleSystem      Role = "system" // service accounts such as the PM trigger
)

// Permission names checked by the HTTP layer.
const (
	PermViewWorkOrders   = "view_work_orders"
	PermCreateWorkOrder  = "create_work_order"
	PermUpdateWorkOrder  = "update_work_order"
	PermLogPartUsage     = "log_part_usage"
	PermDeleteWorkOrder  = "delete_work_order"
	PermViewSchedules    = "view_schedules"
	PermManageSchedules  = "manage_schedules"
	PermGeneratePM       = "generate_pm"
	PermViewSpareParts   = "view_spare_parts"
	PermManageSpareParts = "manage_spare_parts"
)

// User is an entry of the user directory.
type User struct {
	ID        string    `bson:"_id" json:"id" yaml:"id"`
	Username  string    `bson:"username" json:"username" yaml:"username"`
	FullName  string    `bson:"full_name" json:"full_name" yaml:"full_name"`
	Email     string    `bson:"email" json:"email" yaml:"email"`
	Role      Role      `bson:"role" json:"role" yaml:"role"`
	IsActive  bool      `bson:"is_active" json:"is_active" yaml:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at" yaml:"-"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// Actor identifies the caller of a core operation.
type Actor struct {
	UserID string
	Role   Role
}

// Actor returns the caller identified by the claims.
func (c *Claims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleMaintenance, RoleTechnician, RoleViewer, RoleSystem:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role may perform a specific action
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleMaintenance:
		return action != PermDeleteWorkOrder
	case RoleTechnician:
		return action == PermViewWorkOrders || action == PermCreateWorkOrder ||
			action == PermUpdateWorkOrder || action == PermLogPartUsage ||
			action == PermViewSpareParts || action == PermViewSchedules
	case RoleViewer:
		return action == PermViewWorkOrders || action == PermViewSchedules ||
			action == PermViewSpareParts
	case RoleSystem:
		return action == PermGeneratePM || action == PermViewSchedules ||
			action == PermViewWorkOrders
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	return u.IsActive && u.Role.HasPermission(action)
}
