package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMailerSendsEmailRequest(t *testing.T) {
	var gotAuth string
	var gotBody emailRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMailer(srv.URL, "re_test", "Aivisio <onboarding@resend.dev>", srv.Client())
	if err := m.Send(context.Background(), "jo@example.com", "Model training Completed", "<p>Hi Jo,</p>"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotAuth != "Bearer re_test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.From != "Aivisio <onboarding@resend.dev>" {
		t.Fatalf("unexpected from %q", gotBody.From)
	}
	if len(gotBody.To) != 1 || gotBody.To[0] != "jo@example.com" {
		t.Fatalf("unexpected recipients %v", gotBody.To)
	}
	if gotBody.Subject != "Model training Completed" {
		t.Fatalf("unexpected subject %q", gotBody.Subject)
	}
}

func TestMailerSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMailer(srv.URL, "re_bad", "Aivisio <onboarding@resend.dev>", srv.Client())
	if err := m.Send(context.Background(), "jo@example.com", "s", "<p></p>"); err == nil {
		t.Fatal("expected error on rejected send")
	}
}
