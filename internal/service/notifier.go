package service

import "github.com/davork/chatlink/internal/domain"

// Notifier is the user-facing notification side channel (toasts). Every
// session, composer and chat-creation outcome is reported here independently
// of the error returned to the caller.
type Notifier interface {
	Success(title, body string)
	Error(title, body string)
}

// Identity exposes the signed-in user to components gated by it.
type Identity interface {
	Current() *domain.User
}
