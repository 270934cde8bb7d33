package validator

import (
	"strings"
	"testing"

	"github.com/davork/chatlink/internal/domain"
)

func TestValidateRegister(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		displayName string
		password    string
		wantField   string
	}{
		{"valid", "a@b.com", "Alice", "secret1", ""},
		{"missing email", "", "Alice", "secret1", "email"},
		{"malformed email", "not-an-email", "Alice", "secret1", "email"},
		{"missing display name", "a@b.com", "  ", "secret1", "display_name"},
		{"short password", "a@b.com", "Alice", "12345", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRegister(tt.email, tt.displayName, tt.password)
			if tt.wantField == "" {
				if errs.HasErrors() {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if _, ok := errs[tt.wantField]; !ok {
				t.Fatalf("expected error on %s, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidateLogin(t *testing.T) {
	if errs := ValidateLogin("a@b.com", "pw"); errs.HasErrors() {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if errs := ValidateLogin("", "pw"); !errs.HasErrors() {
		t.Fatal("expected missing email error")
	}
	if errs := ValidateLogin("a@b.com", ""); !errs.HasErrors() {
		t.Fatal("expected missing password error")
	}
}

func TestValidateNewChat(t *testing.T) {
	tests := []struct {
		name      string
		chatName  string
		chatType  domain.ChatType
		selected  int
		wantField string
	}{
		{"private with one", "pair", domain.ChatPrivate, 1, ""},
		{"private with none", "pair", domain.ChatPrivate, 0, "participants"},
		{"private with two", "pair", domain.ChatPrivate, 2, "participants"},
		{"group with one", "eng", domain.ChatGroup, 1, ""},
		{"group with none", "eng", domain.ChatGroup, 0, "participants"},
		{"public with none", "General", domain.ChatPublic, 0, ""},
		{"missing name", " ", domain.ChatPublic, 0, "name"},
		{"unknown type", "x", domain.ChatType("secret"), 1, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateNewChat(tt.chatName, tt.chatType, tt.selected)
			if tt.wantField == "" {
				if errs.HasErrors() {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			if _, ok := errs[tt.wantField]; !ok {
				t.Fatalf("expected error on %s, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidateAttachment(t *testing.T) {
	if errs := ValidateAttachment("image/png", 1024); errs.HasErrors() {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if errs := ValidateAttachment("image/png", MaxAttachmentSize); errs.HasErrors() {
		t.Fatalf("size at the cap is allowed, got %v", errs)
	}
	if errs := ValidateAttachment("image/png", MaxAttachmentSize+1); !errs.HasErrors() {
		t.Fatal("expected oversize rejection")
	}
	errs := ValidateAttachment("application/pdf", 10)
	if !errs.HasErrors() || !strings.Contains(errs["image"], "image attachments") {
		t.Fatalf("expected type rejection, got %v", errs)
	}
}
