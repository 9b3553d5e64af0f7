// internal/models/auth.go
package models

// Caller is the authenticated identity supplied by the auth layer. The core
// trusts it as-is.
type Caller struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"isAdmin"`
}

func (c Caller) Anonymous() bool {
	return c.ID == ""
}

func AdminCaller(id string) Caller {
	return Caller{ID: id, IsAdmin: true}
}

func UserCaller(id string) Caller {
	return Caller{ID: id}
}
