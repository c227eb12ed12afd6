package email

import (
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	cases := []struct {
		name   string
		config Config
		want   bool
	}{
		{name: "empty", config: Config{}, want: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, want: false},
		{name: "complete", config: Config{Host: "smtp.example.com", Port: "587", From: "noreply@canvasai.dev"}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.config)
			if got := svc.IsConfigured(); got != tc.want {
				t.Fatalf("IsConfigured() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSendFailsWhenUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendHTMLEmail([]string{"a@b.co"}, "subject", "<p>hi</p>"); err == nil {
		t.Fatalf("expected error when email is not configured")
	}
}

func TestVerificationTemplateRenders(t *testing.T) {
	html, err := renderTemplate(verificationEmailTemplate, VerificationData{
		AppName:         "Canvas AI",
		UserName:        "Avery",
		VerificationURL: "https://canvasai.dev/verify?token=abc",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Canvas AI", "Avery", "https://canvasai.dev/verify?token=abc"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered template missing %q", want)
		}
	}
}

func TestPasswordResetTemplateRenders(t *testing.T) {
	html, err := renderTemplate(passwordResetEmailTemplate, PasswordResetData{
		AppName:  "Canvas AI",
		UserName: "Avery",
		ResetURL: "https://canvasai.dev/reset?token=xyz",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "https://canvasai.dev/reset?token=xyz") {
		t.Fatalf("rendered template missing reset url")
	}
	if !strings.Contains(html, "expire in 1 hour") {
		t.Fatalf("rendered template missing expiry warning")
	}
}
