package models

const RoleAdmin = "admin"

// Caller représente l'utilisateur authentifié extrait du JWT
type Caller struct {
	ID    string `json:"user_id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

func (c Caller) IsAnonymous() bool {
	return c.ID == ""
}
