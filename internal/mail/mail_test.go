package mail

import (
	"strings"
	"testing"
)

func TestVerificationMessage(t *testing.T) {
	msg, err := VerificationMessage("a@example.com", "Alice", "https://app.example.com/", "tok123")
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if msg.To != "a@example.com" {
		t.Fatalf("unexpected recipient: %q", msg.To)
	}
	if !strings.Contains(msg.HTML, "https://app.example.com/verify-email?token=tok123") {
		t.Fatalf("verification link missing from body:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "Alice") {
		t.Fatalf("name missing from body")
	}
}

func TestPasswordResetMessage(t *testing.T) {
	msg, err := PasswordResetMessage("b@example.com", "Bob", "https://app.example.com", "tok456")
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if !strings.Contains(msg.HTML, "/reset-password?token=tok456") {
		t.Fatalf("reset link missing from body:\n%s", msg.HTML)
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(nil)
	if err := s.Send(Message{To: "c@example.com", Subject: "hi", HTML: "<p>hi</p>"}); err != nil {
		t.Fatalf("log sender should never fail: %v", err)
	}
}
