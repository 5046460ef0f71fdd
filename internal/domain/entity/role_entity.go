package entity

import "slices"

// Role labels are a static set; there is no role management in this service.
const (
	RoleUser   = "user"
	RoleClient = "client"
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

var knownRoles = []string{RoleUser, RoleClient, RoleWorker, RoleAdmin}

// DefaultRoles is assigned to every newly registered account.
func DefaultRoles() []string { return []string{RoleUser} }

func IsKnownRole(r string) bool { return slices.Contains(knownRoles, r) }
