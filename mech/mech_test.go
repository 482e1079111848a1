package mech

import "testing"

func TestPlainClientInitialResponse(t *testing.T) {
	c := NewPlainClient("", "user", "pass")
	mechName, ir, err := c.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if mechName != "PLAIN" {
		t.Fatalf("mech = %q, want PLAIN", mechName)
	}
	want := "\x00user\x00pass"
	if string(ir) != want {
		t.Fatalf("ir = %q, want %q", ir, want)
	}
}

func TestLoginClientChallengeSequence(t *testing.T) {
	c := NewLoginClient("user", "pass")
	mechName, ir, err := c.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if mechName != "LOGIN" {
		t.Fatalf("mech = %q, want LOGIN", mechName)
	}
	if ir != nil {
		t.Fatalf("expected no initial response, got %q", ir)
	}
	resp, err := c.Next([]byte("Username:"))
	if err != nil || string(resp) != "user" {
		t.Fatalf("first challenge: got (%q, %v)", resp, err)
	}
	resp, err = c.Next([]byte("Password:"))
	if err != nil || string(resp) != "pass" {
		t.Fatalf("second challenge: got (%q, %v)", resp, err)
	}
}

func TestXOAuth2ClientInitialResponse(t *testing.T) {
	c := NewXOAuth2Client("user@example.com", "token123")
	mechName, ir, err := c.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if mechName != "XOAUTH2" {
		t.Fatalf("mech = %q, want XOAUTH2", mechName)
	}
	want := "user=user@example.com\x01auth=Bearer token123\x01\x01"
	if string(ir) != want {
		t.Fatalf("ir = %q, want %q", ir, want)
	}
	resp, err := c.Next([]byte(""))
	if err != nil || len(resp) != 0 {
		t.Fatalf("next: got (%q, %v)", resp, err)
	}
}
