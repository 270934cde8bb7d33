package validator

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/davork/chatlink/internal/domain"
)

// MaxAttachmentSize is the per-image cap for message attachments.
const MaxAttachmentSize = 5 * 1024 * 1024

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func ValidateRegister(email, displayName, password string) ValidationErrors {
	errs := make(ValidationErrors)

	// Email
	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	// Display name
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		errs.Add("display_name", "Display name is required")
	} else if len(displayName) > 100 {
		errs.Add("display_name", "Display name is too long")
	}

	// Password: the auth provider enforces the same minimum, but checking it
	// here keeps a weak password from ever reaching the network.
	if len(password) < 6 {
		errs.Add("password", "Password must be at least 6 characters")
	}

	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	errs := make(ValidationErrors)

	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}

// ValidateNewChat checks a chat-creation request. Participant selection rules
// depend on the type: private is exactly one, group at least one. Public
// chats take no selection; the caller ignores any that was made.
func ValidateNewChat(name string, chatType domain.ChatType, selected int) ValidationErrors {
	errs := make(ValidationErrors)

	name = strings.TrimSpace(name)
	if name == "" {
		errs.Add("name", "Chat name is required")
	} else if len(name) > 100 {
		errs.Add("name", "Chat name is too long")
	}

	if !chatType.Valid() {
		errs.Add("type", "Chat type must be private, group, or public")
		return errs
	}

	switch chatType {
	case domain.ChatPrivate:
		if selected != 1 {
			errs.Add("participants", "Select exactly one user for a private chat")
		}
	case domain.ChatGroup:
		if selected < 1 {
			errs.Add("participants", "Select at least one user for a group chat")
		}
	}

	return errs
}

// ValidateAttachment checks a composer image before any network use.
func ValidateAttachment(contentType string, size int) ValidationErrors {
	errs := make(ValidationErrors)

	if !strings.HasPrefix(contentType, "image/") {
		errs.Add("image", "Only image attachments are allowed")
	}
	if size > MaxAttachmentSize {
		errs.Add("image", fmt.Sprintf("Image must be smaller than %d MB", MaxAttachmentSize/(1024*1024)))
	}

	return errs
}
