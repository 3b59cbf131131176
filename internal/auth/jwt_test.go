package auth

import (
	"testing"
	"time"

	"github.com/nexuscore/fabric/pkg/models"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate(&models.User{ID: "user-1", Username: "user1", DisplayName: "User One"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	user, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user id, got %q", user.ID)
	}
	if user.Username != "user1" {
		t.Fatalf("expected username, got %q", user.Username)
	}
	if user.DisplayName != "User One" {
		t.Fatalf("expected display name, got %q", user.DisplayName)
	}
}
