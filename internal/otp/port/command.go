package port

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/errmap"
	"github.com/aelexs/otp-fetcher/internal/observability"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
)

// Replier delivers a chat message to the user who issued a command. It is
// also used for auto-check notifications, so it may be called long after
// Handle returns.
type Replier func(text string)

// CommandConfig holds configuration for creating a CommandHandler.
type CommandConfig struct {
	// AutoCheckInterval is only used in reply text.
	AutoCheckInterval time.Duration
	Logger            *slog.Logger
}

// CommandHandler implements the ".otp <subcommand>" chat command set on top
// of the session manager. It is transport agnostic: callers supply the user
// identity and a Replier.
type CommandHandler struct {
	svc      otpService
	interval time.Duration
	logger   *slog.Logger
}

// NewCommandHandler creates a CommandHandler backed by svc.
func NewCommandHandler(svc *app.Manager, cfg CommandConfig) *CommandHandler {
	return newCommandHandler(svc, cfg)
}

func newCommandHandler(svc otpService, cfg CommandConfig) *CommandHandler {
	if cfg.AutoCheckInterval <= 0 {
		cfg.AutoCheckInterval = domain.AutoCheckInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CommandHandler{svc: svc, interval: cfg.AutoCheckInterval, logger: cfg.Logger}
}

// Handle runs one command. args are the words after ".otp"; an empty or
// unknown subcommand replies with help.
func (h *CommandHandler) Handle(ctx context.Context, userID string, args []string, reply Replier) error {
	if args == nil {
		// cobra falls back to os.Args when given nil
		args = []string{}
	}
	root := h.commands(userID, reply)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		observability.WithTraceID(ctx, h.logger).WarnContext(ctx, "otp command failed",
			slog.String("user_id", userID),
			slog.Any("args", args),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("otp command: %w", err)
	}
	return nil
}

// commands builds a fresh command tree per invocation; cobra commands hold
// per-execution state.
func (h *CommandHandler) commands(userID string, reply Replier) *cobra.Command {
	run := func(fn func(ctx context.Context, args []string)) func(*cobra.Command, []string) {
		return func(cmd *cobra.Command, args []string) {
			fn(cmd.Context(), args)
		}
	}

	root := &cobra.Command{
		Use:  "otp",
		Args: cobra.ArbitraryArgs,
		Run:  run(func(context.Context, []string) { reply(helpText) }),
	}

	root.AddCommand(
		&cobra.Command{
			Use: "countries",
			Run: run(func(context.Context, []string) { reply(h.countriesText()) }),
		},
		&cobra.Command{
			Use: "services",
			Run: run(func(context.Context, []string) { reply(h.servicesText()) }),
		},
		&cobra.Command{
			Use:     "get <country> <service>",
			Aliases: []string{"generate"},
			Run: run(func(ctx context.Context, args []string) {
				h.get(ctx, userID, args, reply)
			}),
		},
		&cobra.Command{
			Use: "check",
			Run: run(func(ctx context.Context, _ []string) { h.check(ctx, userID, reply) }),
		},
		&cobra.Command{
			Use: "auto",
			Run: run(func(ctx context.Context, _ []string) { h.toggleAuto(ctx, userID, reply) }),
		},
		&cobra.Command{
			Use: "status",
			Run: run(func(context.Context, []string) { h.status(userID, reply) }),
		},
		&cobra.Command{
			Use:     "clear",
			Aliases: []string{"stop"},
			Run: run(func(ctx context.Context, _ []string) {
				if h.svc.ClearSession(ctx, userID) {
					reply("✅ OTP session cleared.")
					return
				}
				reply("❌ No active session to clear.")
			}),
		},
		&cobra.Command{
			Use:     "recent",
			Aliases: []string{"history"},
			Run:     run(func(context.Context, []string) { h.recent(userID, reply) }),
		},
		&cobra.Command{
			Use: "test",
			Run: run(func(ctx context.Context, _ []string) { h.test(ctx, reply) }),
		},
	)
	root.SetHelpCommand(&cobra.Command{
		Use: "help",
		Run: run(func(context.Context, []string) { reply(helpText) }),
	})

	for _, c := range append(root.Commands(), root) {
		c.DisableFlagParsing = true
		c.SilenceErrors = true
		c.SilenceUsage = true
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root
}

func (h *CommandHandler) get(ctx context.Context, userID string, args []string, reply Replier) {
	if len(args) < 2 {
		reply(getUsageText)
		return
	}

	country, svc, err := h.svc.Catalog().Validate(args[0], args[1])
	if err != nil {
		reply(errmap.ToReply(err).Text)
		return
	}

	reply(fmt.Sprintf("⏳ Generating %s number for %s...", svc.Name, country.DisplayName()))

	result, err := h.svc.CreateSession(ctx, userID, country.Code, svc.ID)
	if err != nil {
		reply(errmap.ToReply(err).Text)
		return
	}

	reply(fmt.Sprintf("%s\n\nUse .otp check to check for OTP\nUse .otp auto for auto-check (every %s)\nUse .otp status to see current status",
		result.Message, h.interval))

	if _, err := h.svc.StartAutoCheck(ctx, userID, notify(reply)); err != nil {
		observability.WithTraceID(ctx, h.logger).WarnContext(ctx, "auto-check not started",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		reply(errmap.ToReply(err).Text)
	}
}

func (h *CommandHandler) check(ctx context.Context, userID string, reply Replier) {
	result, err := h.svc.CheckUserOTP(ctx, userID)
	if err != nil {
		reply(errmap.ToReply(err).Text)
		return
	}
	reply(result.Message)
}

func (h *CommandHandler) toggleAuto(ctx context.Context, userID string, reply Replier) {
	enabled, err := h.svc.ToggleAutoCheck(ctx, userID, notify(reply))
	if err != nil {
		reply(errmap.ToReply(err).Text)
		return
	}
	if !enabled {
		reply("🛑 Auto-check stopped.")
		return
	}

	sess, ok := h.svc.GetUserSession(userID)
	if !ok {
		// cleared between the toggle and this read
		reply(errmap.ToReply(domain.ErrNoActiveSession).Text)
		return
	}
	reply(fmt.Sprintf("✅ Auto-check started!\n📱 Checking %s every %s...\n📱 Service: %s\n\nI will notify you when OTP arrives!",
		sess.PhoneNumber.Display(), h.interval, sess.Service.Name))
}

func (h *CommandHandler) status(userID string, reply Replier) {
	sess, ok := h.svc.GetUserSession(userID)
	if !ok {
		reply(errmap.ToReply(domain.ErrNoActiveSession).Text)
		return
	}

	var b strings.Builder
	b.WriteString("📱 OTP Session Status:\n\n")
	fmt.Fprintf(&b, "📞 Number: %s\n", sess.PhoneNumber.Display())
	fmt.Fprintf(&b, "🌍 Country: %s\n", sess.Country.DisplayName())
	fmt.Fprintf(&b, "📱 Service: %s\n", sess.Service.Name)
	fmt.Fprintf(&b, "📊 Status: %s\n", statusLabel(sess))
	if sess.OTP != "" {
		fmt.Fprintf(&b, "🔑 OTP: %s\n", sess.OTP)
	}
	fmt.Fprintf(&b, "🕐 Created: %s\n", sess.CreatedAt.Format(time.TimeOnly))
	if sess.AutoCheckEnabled() {
		b.WriteString("🔄 Auto-check: ✅ Enabled\n")
	} else {
		b.WriteString("🔄 Auto-check: ❌ Disabled\n")
	}
	b.WriteString("\nCommands:\n• .otp check - Check for OTP\n• .otp auto - Toggle auto-check\n• .otp clear - Clear session")
	reply(b.String())
}

// recent lists every active session. Other users' numbers are masked and
// their codes are never shown.
func (h *CommandHandler) recent(userID string, reply Replier) {
	all := h.svc.GetAllSessions()
	if len(all) == 0 {
		reply("📭 No active OTP sessions.")
		return
	}

	users := make([]domain.UserID, 0, len(all))
	for uid := range all {
		users = append(users, uid)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })

	var b strings.Builder
	b.WriteString("📋 Active OTP Sessions:\n\n")
	for i, uid := range users {
		sess := all[uid]
		own := uid.String() == userID
		fmt.Fprintf(&b, "%d. %s\n", i+1, uid.Short())
		if own {
			fmt.Fprintf(&b, "   📱 %s\n", sess.PhoneNumber.Display())
		} else {
			fmt.Fprintf(&b, "   📱 %s\n", sess.PhoneNumber.Masked())
		}
		fmt.Fprintf(&b, "   📱 %s\n", sess.Service.Name)
		fmt.Fprintf(&b, "   📊 %s\n", shortStatusLabel(sess))
		if own && sess.OTP != "" {
			fmt.Fprintf(&b, "   🔑 OTP: %s\n", sess.OTP)
		}
		b.WriteString("\n")
	}
	reply(strings.TrimRight(b.String(), "\n"))
}

func (h *CommandHandler) test(ctx context.Context, reply Replier) {
	reply("🔍 Testing connection to OTP service...")

	countries, err := h.svc.GetCountries(ctx)
	switch {
	case err != nil:
		reply(fmt.Sprintf("❌ Connection failed: %s", errmap.ToReply(err).Text))
	case len(countries) == 0:
		reply("⚠️ Connection successful but no countries found.")
	default:
		reply(fmt.Sprintf("✅ Connection successful!\n🌍 Available countries: %d", len(countries)))
	}
}

func (h *CommandHandler) countriesText() string {
	var b strings.Builder
	b.WriteString("🌍 Available Countries:\n\n")
	for _, c := range h.svc.Catalog().Countries() {
		fmt.Fprintf(&b, "• %s (%s)\n", c.DisplayName(), c.Code)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *CommandHandler) servicesText() string {
	var b strings.Builder
	b.WriteString("📱 Available Services:\n\n")
	for _, s := range h.svc.Catalog().Services() {
		fmt.Fprintf(&b, "• %s (%s)\n", s.Name, s.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// notify adapts a Replier into an auto-check sink. Stops caused by the
// user's own commands are not relayed; the command already replied.
func notify(reply Replier) app.Sink {
	return func(n app.Notification) {
		switch n.Reason {
		case "", app.StopReplaced, app.StopShutdown:
			reply(n.Message)
		}
	}
}

func statusLabel(s app.Session) string {
	if s.Received() {
		return "✅ OTP Received"
	}
	return "⏳ Waiting for OTP"
}

func shortStatusLabel(s app.Session) string {
	if s.Received() {
		return "✅ OTP Received"
	}
	return "⏳ Waiting"
}

const getUsageText = "Usage: .otp get <country_code> <service>\n" +
	"Example: .otp get US whatsapp\n\n" +
	"Use .otp countries and .otp services to see available options."

const helpText = "🔐 OTP Fetcher Commands:\n\n" +
	"🌍 .otp countries - Show available countries\n" +
	"📱 .otp services - Show available services\n" +
	"🔄 .otp get <country> <service> - Get a temporary number\n" +
	"📥 .otp check - Check for OTP\n" +
	"🔄 .otp auto - Toggle auto-check\n" +
	"📊 .otp status - Check session status\n" +
	"🧹 .otp clear - Clear current session\n" +
	"📋 .otp recent - Show active sessions\n" +
	"🔍 .otp test - Test connection\n\n" +
	"📝 Examples:\n" +
	"• .otp get US whatsapp\n" +
	"• .otp get IN telegram\n" +
	"• .otp get GB google\n\n" +
	"⚠️ Note: This uses temporary numbers for testing only."
