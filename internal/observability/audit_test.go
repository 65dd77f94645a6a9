package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBuildAuditEvent(t *testing.T) {
	cases := []struct {
		name   string
		remote string
		reqID  string
		in     AuditInput
		check  func(t *testing.T, ev AuditEvent)
	}{
		{
			name:   "login success",
			remote: "203.0.113.7:5100",
			reqID:  "req-login-1",
			in: AuditInput{
				EventName: "auth.login", ActorUserID: "17", TargetID: "17",
				Action: "login", Outcome: "success", Reason: "credentials_valid",
			},
			check: func(t *testing.T, ev AuditEvent) {
				if ev.ActorIP != "203.0.113.7" || ev.RequestID != "req-login-1" || ev.TargetType != "user" {
					t.Fatalf("unexpected event %+v", ev)
				}
			},
		},
		{
			name:   "anonymous otp request",
			remote: "198.51.100.2",
			in:     AuditInput{EventName: "auth.register.otp", Action: "request_otp", Outcome: "success"},
			check: func(t *testing.T, ev AuditEvent) {
				if ev.ActorUserID != "anonymous" || ev.TargetID != "unknown" || ev.Reason != "none" || ev.RequestID != "unknown" {
					t.Fatalf("expected defaults, got %+v", ev)
				}
				if ev.ActorIP != "198.51.100.2" {
					t.Fatalf("remote without port should pass through, got %q", ev.ActorIP)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
			req.RemoteAddr = tc.remote
			if tc.reqID != "" {
				req.Header.Set("X-Request-Id", tc.reqID)
			}
			ev := BuildAuditEvent(req, tc.in)
			if ev.EventVersion != auditEventVersion {
				t.Fatalf("event version %d", ev.EventVersion)
			}
			if _, err := time.Parse(time.RFC3339, ev.TS); err != nil {
				t.Fatalf("ts %q: %v", ev.TS, err)
			}
			if err := ev.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			tc.check(t, ev)
		})
	}
}

func TestAuditEventValidateListsEveryMissingField(t *testing.T) {
	err := AuditEvent{TS: time.Now().UTC().Format(time.RFC3339)}.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"event_version", "event_name", "action", "outcome"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("error %q does not mention %s", err, field)
		}
	}
}
