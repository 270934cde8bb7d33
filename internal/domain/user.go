package domain

import "strings"

// User is the identity mirrored into the directory store at users/{uid}.
// The uid comes from the auth provider; everything else is editable profile.
type User struct {
	UID         string  `json:"uid"`
	Email       string  `json:"email"`
	DisplayName string  `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
	CreatedAt   int64   `json:"createdAt,omitempty"`
}

// Name returns the best label we have for the user: the display name, falling
// back to the local part of the email.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return u.Email
}
