package domain

// BootstrapData seeds an empty deployment.
type BootstrapData struct {
	AdminUsername string
	AdminName     string
	AdminEmail    string
	AdminPassword string
	Roles         []RoleDefinition
}

type RoleDefinition struct {
	Name        string
	Description string
}

// DefaultRoles are created on every start if missing.
var DefaultRoles = []RoleDefinition{
	{Name: AdminRole, Description: "Tenant administrators"},
	{Name: DefaultRole, Description: "Regular users"},
}
