package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderCredentialsTemplate(t *testing.T) {
	data := CredentialsData{
		AppName:  "Proctor",
		TestName: "Aptitude Round 1",
		Username: "pt2024001",
		Password: "9f2c1ab0",
		LoginURL: "https://example.com/login",
	}

	html, err := renderTemplate(credentialsEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Aptitude Round 1") {
		t.Error("template should contain the test name")
	}
	if !strings.Contains(html, "pt2024001") {
		t.Error("template should contain the username")
	}
	if !strings.Contains(html, "9f2c1ab0") {
		t.Error("template should contain the issued password")
	}
	if !strings.Contains(html, "https://example.com/login") {
		t.Error("template should contain the login link")
	}
}

func TestRenderVenueUpdateTemplate(t *testing.T) {
	data := VenueUpdateData{
		AppName:  "Proctor",
		Name:     "Asha Rao",
		TestName: "Aptitude Round 1",
		Venue:    "Hall 2",
	}

	html, err := renderTemplate(venueUpdateEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Asha Rao") {
		t.Error("template should contain the applicant name")
	}
	if !strings.Contains(html, "Hall 2") {
		t.Error("template should contain the venue")
	}
}
