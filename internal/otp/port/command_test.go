package port

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
	"github.com/aelexs/otp-fetcher/internal/provider"
)

func runCommand(t *testing.T, svc *stubService, userID string, args ...string) *replies {
	t.Helper()
	h := newCommandHandler(svc, CommandConfig{AutoCheckInterval: 10 * time.Second})
	r := &replies{}
	require.NoError(t, h.Handle(context.Background(), userID, args, r.reply))
	return r
}

func TestCommandHelp(t *testing.T) {
	for _, args := range [][]string{nil, {}, {"help"}, {"bogus"}, {"GET", "US", "whatsapp"}, {"-h"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			r := runCommand(t, &stubService{}, "alice", args...)
			require.Len(t, r.all(), 1)
			assert.Equal(t, helpText, r.last())
		})
	}
}

func TestCommandHandleNilArgsDoesNotReadProcessArgs(t *testing.T) {
	h := newCommandHandler(&stubService{}, CommandConfig{})
	r := &replies{}
	require.NoError(t, h.Handle(context.Background(), "alice", nil, r.reply))
	assert.Equal(t, []string{helpText}, r.all())
}

func TestCommandCountriesAndServices(t *testing.T) {
	r := runCommand(t, &stubService{}, "alice", "countries")
	text := r.last()
	assert.True(t, strings.HasPrefix(text, "🌍 Available Countries:\n\n"))
	assert.Contains(t, text, "• United States (+1) (US)")
	assert.Contains(t, text, "• South Korea (+82) (KR)")
	assert.Equal(t, 10, strings.Count(text, "•"))

	r = runCommand(t, &stubService{}, "alice", "services")
	text = r.last()
	assert.True(t, strings.HasPrefix(text, "📱 Available Services:\n\n"))
	assert.Contains(t, text, "• Twitter/X (twitter)")
	assert.Equal(t, 16, strings.Count(text, "•"))
}

func TestCommandGet(t *testing.T) {
	t.Run("missing arguments prints usage", func(t *testing.T) {
		r := runCommand(t, &stubService{}, "alice", "get", "US")
		assert.Equal(t, []string{getUsageText}, r.all())
	})

	t.Run("invalid country is rejected before any call", func(t *testing.T) {
		svc := &stubService{
			createSessionFn: func(context.Context, string, string, string) (*app.CreateResult, error) {
				t.Fatal("CreateSession must not be called")
				return nil, nil
			},
		}
		r := runCommand(t, svc, "alice", "get", "ZZ", "whatsapp")
		require.Len(t, r.all(), 1)
		assert.Contains(t, r.last(), "Invalid country code")
	})

	t.Run("invalid service", func(t *testing.T) {
		r := runCommand(t, &stubService{}, "alice", "generate", "US", "myspace")
		require.Len(t, r.all(), 1)
		assert.Contains(t, r.last(), "Invalid service")
	})

	t.Run("creates the session then starts auto-check", func(t *testing.T) {
		var sink app.Sink
		var order []string
		svc := &stubService{
			createSessionFn: func(_ context.Context, userID, country, service string) (*app.CreateResult, error) {
				order = append(order, "create")
				assert.Equal(t, "alice", userID)
				assert.Equal(t, "US", country)
				assert.Equal(t, "whatsapp", service)
				return &app.CreateResult{Session: testSession(userID), Message: "Number ready."}, nil
			},
			startAutoCheckFn: func(_ context.Context, userID string, s app.Sink) (app.AutoCheckID, error) {
				order = append(order, "start")
				sink = s
				return 1, nil
			},
		}

		r := runCommand(t, svc, "alice", "get", "us", "WhatsApp")

		assert.Equal(t, []string{"create", "start"}, order)
		msgs := r.all()
		require.Len(t, msgs, 2)
		assert.Equal(t, "⏳ Generating WhatsApp number for United States (+1)...", msgs[0])
		assert.True(t, strings.HasPrefix(msgs[1], "Number ready.\n\n"))
		assert.Contains(t, msgs[1], "every 10s")

		require.NotNil(t, sink)
		sink(app.Notification{Kind: app.NotificationReceived, Code: "123456", Message: "Code received: 123456"})
		assert.Equal(t, "Code received: 123456", r.last())
	})

	t.Run("provider failure is reported and auto-check is not started", func(t *testing.T) {
		svc := &stubService{
			createSessionFn: func(context.Context, string, string, string) (*app.CreateResult, error) {
				return nil, domain.ErrNoNumbersAvailable
			},
			startAutoCheckFn: func(context.Context, string, app.Sink) (app.AutoCheckID, error) {
				t.Fatal("StartAutoCheck must not be called")
				return 1, nil
			},
		}
		r := runCommand(t, svc, "alice", "get", "US", "whatsapp")
		require.Len(t, r.all(), 2)
		assert.Contains(t, r.last(), "No numbers available")
	})

	t.Run("rate limited", func(t *testing.T) {
		svc := &stubService{
			createSessionFn: func(context.Context, string, string, string) (*app.CreateResult, error) {
				return nil, domain.ErrRateLimited
			},
		}
		r := runCommand(t, svc, "alice", "get", "US", "whatsapp")
		assert.Contains(t, r.last(), "Too many numbers requested")
	})
}

func TestCommandCheck(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		r := runCommand(t, &stubService{}, "alice", "check")
		assert.Equal(t, []string{"❌ No active OTP session. Use .otp get first."}, r.all())
	})

	t.Run("replies with the result message", func(t *testing.T) {
		svc := &stubService{
			checkUserOTPFn: func(_ context.Context, userID string) (*app.CheckResult, error) {
				return &app.CheckResult{Status: app.CheckReceived, Code: "123456", Message: "Code received: 123456"}, nil
			},
		}
		r := runCommand(t, svc, "alice", "check")
		assert.Equal(t, []string{"Code received: 123456"}, r.all())
	})

	t.Run("expired", func(t *testing.T) {
		svc := &stubService{
			checkUserOTPFn: func(context.Context, string) (*app.CheckResult, error) {
				return nil, domain.ErrSessionExpired
			},
		}
		r := runCommand(t, svc, "alice", "check")
		assert.Contains(t, r.last(), "expired")
	})
}

func TestCommandAuto(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		r := runCommand(t, &stubService{}, "alice", "auto")
		assert.Contains(t, r.last(), "No active OTP session")
	})

	t.Run("turns auto-check on", func(t *testing.T) {
		sess := testSession("alice")
		sess.PollHandle = stubHandle{}
		svc := &stubService{
			toggleAutoCheckFn: func(_ context.Context, _ string, sink app.Sink) (bool, error) {
				assert.NotNil(t, sink)
				return true, nil
			},
			getUserSessionFn: func(string) (app.Session, bool) { return sess, true },
		}
		r := runCommand(t, svc, "alice", "auto")
		text := r.last()
		assert.True(t, strings.HasPrefix(text, "✅ Auto-check started!"))
		assert.Contains(t, text, "+1 202-555-0143 every 10s")
		assert.Contains(t, text, "Service: WhatsApp")
	})

	t.Run("turns auto-check off", func(t *testing.T) {
		svc := &stubService{
			toggleAutoCheckFn: func(context.Context, string, app.Sink) (bool, error) { return false, nil },
		}
		r := runCommand(t, svc, "alice", "auto")
		assert.Equal(t, []string{"🛑 Auto-check stopped."}, r.all())
	})
}

func TestNotifyRelaysOnlyUnpromptedStops(t *testing.T) {
	tests := []struct {
		name  string
		note  app.Notification
		relay bool
	}{
		{"received by the loop", app.Notification{Kind: app.NotificationReceived, Message: "code 1"}, true},
		{"failed", app.Notification{Kind: app.NotificationFailed, Message: "expired"}, true},
		{"replaced", app.Notification{Kind: app.NotificationStopped, Reason: app.StopReplaced, Message: "took over"}, true},
		{"shutdown", app.Notification{Kind: app.NotificationStopped, Reason: app.StopShutdown, Message: "shutting down"}, true},
		{"received by a manual check", app.Notification{Kind: app.NotificationReceived, Reason: app.StopChecked, Message: "code 1"}, false},
		{"stopped by the user", app.Notification{Kind: app.NotificationStopped, Reason: app.StopRequested, Message: "stopped"}, false},
		{"cleared by the user", app.Notification{Kind: app.NotificationStopped, Reason: app.StopCleared, Message: "cleared"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r replies
			notify(r.reply)(tt.note)
			if tt.relay {
				assert.Equal(t, []string{tt.note.Message}, r.all())
			} else {
				assert.Empty(t, r.all())
			}
		})
	}
}

func TestCommandStatus(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		r := runCommand(t, &stubService{}, "alice", "status")
		assert.Contains(t, r.last(), "No active OTP session")
	})

	t.Run("pending with auto-check", func(t *testing.T) {
		sess := testSession("alice")
		sess.PollHandle = stubHandle{}
		svc := &stubService{getUserSessionFn: func(string) (app.Session, bool) { return sess, true }}

		text := runCommand(t, svc, "alice", "status").last()
		assert.Contains(t, text, "📞 Number: +1 202-555-0143")
		assert.Contains(t, text, "🌍 Country: United States (+1)")
		assert.Contains(t, text, "📱 Service: WhatsApp")
		assert.Contains(t, text, "⏳ Waiting for OTP")
		assert.Contains(t, text, "🕐 Created: 12:00:00")
		assert.Contains(t, text, "Auto-check: ✅ Enabled")
		assert.NotContains(t, text, "🔑")
	})

	t.Run("received", func(t *testing.T) {
		sess := receivedSession("alice", "654321")
		svc := &stubService{getUserSessionFn: func(string) (app.Session, bool) { return sess, true }}

		text := runCommand(t, svc, "alice", "status").last()
		assert.Contains(t, text, "✅ OTP Received")
		assert.Contains(t, text, "🔑 OTP: 654321")
		assert.Contains(t, text, "Auto-check: ❌ Disabled")
	})
}

func TestCommandClear(t *testing.T) {
	for _, sub := range []string{"clear", "stop"} {
		t.Run(sub, func(t *testing.T) {
			svc := &stubService{clearSessionFn: func(context.Context, string) bool { return true }}
			assert.Equal(t, []string{"✅ OTP session cleared."}, runCommand(t, svc, "alice", sub).all())

			svc = &stubService{clearSessionFn: func(context.Context, string) bool { return false }}
			assert.Equal(t, []string{"❌ No active session to clear."}, runCommand(t, svc, "alice", sub).all())
		})
	}
}

func TestCommandRecent(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := runCommand(t, &stubService{}, "alice", "recent")
		assert.Equal(t, []string{"📭 No active OTP sessions."}, r.all())
	})

	t.Run("lists sessions and hides other users' codes", func(t *testing.T) {
		svc := &stubService{
			getAllSessionsFn: func() map[domain.UserID]app.Session {
				return map[domain.UserID]app.Session{
					domain.MustUserID("bob@s.whatsapp.net"):   receivedSession("bob@s.whatsapp.net", "111111"),
					domain.MustUserID("alice@s.whatsapp.net"): receivedSession("alice@s.whatsapp.net", "222222"),
				}
			},
		}

		text := runCommand(t, svc, "alice@s.whatsapp.net", "history").last()
		assert.True(t, strings.HasPrefix(text, "📋 Active OTP Sessions:\n\n1. alice\n"), text)
		assert.Contains(t, text, "2. bob\n")
		assert.Contains(t, text, "🔑 OTP: 222222")
		assert.NotContains(t, text, "111111")
		assert.Contains(t, text, "***0143")
	})
}

func TestCommandTest(t *testing.T) {
	tests := []struct {
		name      string
		countries []provider.Country
		err       error
		want      string
	}{
		{"success", []provider.Country{{Code: "US"}, {Code: "GB"}}, nil, "✅ Connection successful!\n🌍 Available countries: 2"},
		{"empty", nil, nil, "⚠️ Connection successful but no countries found."},
		{"failure", nil, domain.ErrProviderUnavailable, "❌ Connection failed: ❌ The OTP provider is unavailable. Try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				getCountriesFn: func(context.Context) ([]provider.Country, error) { return tt.countries, tt.err },
			}
			r := runCommand(t, svc, "alice", "test")
			assert.Equal(t, []string{"🔍 Testing connection to OTP service...", tt.want}, r.all())
		})
	}
}
