package port

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// commandTimeout bounds one chat command, provider round trips included.
const commandTimeout = 30 * time.Second

// messenger is the subset of *tb.Bot the transport uses.
type messenger interface {
	Handle(endpoint interface{}, handler interface{})
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
	Start()
	Stop()
}

// TelegramConfig holds configuration for creating a TelegramBot.
type TelegramConfig struct {
	Token       domain.SecretString
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// TelegramBot feeds "/otp" and ".otp" messages from Telegram into a
// CommandHandler and sends replies back to the originating chat.
type TelegramBot struct {
	bot      messenger
	commands *CommandHandler
	logger   *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	once    sync.Once
}

// NewTelegramBot connects to the Bot API with a long poller. It does not
// start polling; call Start.
func NewTelegramBot(cfg TelegramConfig, commands *CommandHandler) (*TelegramBot, error) {
	if cfg.Token.IsEmpty() {
		return nil, fmt.Errorf("telegram token: %w", domain.ErrConfigRequired)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = domain.TelegramPollTimeout
	}

	b, err := tb.NewBot(tb.Settings{
		Token:  cfg.Token.Expose(),
		Poller: &tb.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramBot(b, commands, cfg.Logger), nil
}

func newTelegramBot(bot messenger, commands *CommandHandler, logger *slog.Logger) *TelegramBot {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &TelegramBot{
		bot:      bot,
		commands: commands,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	bot.Handle(tb.OnText, t.onText)
	return t
}

// Start polls for updates in the background until Stop.
func (t *TelegramBot) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.bot.Start()
	}()
	t.logger.Info("telegram bot started")
}

// Stop ends polling and cancels in-flight commands. It is safe to call more
// than once.
func (t *TelegramBot) Stop() {
	t.once.Do(func() {
		t.cancel()
		// telebot's Stop blocks unless Start is running
		if t.started.Load() {
			t.bot.Stop()
		}
		t.wg.Wait()
		t.logger.Info("telegram bot stopped")
	})
}

func (t *TelegramBot) onText(m *tb.Message) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return
	}
	args, ok := parseOTPCommand(m.Text)
	if !ok {
		return
	}
	if t.ctx.Err() != nil {
		return
	}

	userID := strconv.FormatInt(int64(m.Sender.ID), 10)
	chat := m.Chat

	ctx, cancel := context.WithTimeout(t.ctx, commandTimeout)
	defer cancel()

	_ = t.commands.Handle(ctx, userID, args, func(text string) {
		if _, err := t.bot.Send(chat, text); err != nil {
			t.logger.Warn("telegram send failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// parseOTPCommand recognises "/otp ...", "/otp@botname ..." and ".otp ..."
// and returns the words after the command.
func parseOTPCommand(text string) ([]string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, false
	}
	head := fields[0]
	if at := strings.IndexByte(head, '@'); at >= 0 && strings.HasPrefix(head, "/") {
		head = head[:at]
	}
	if head != "/otp" && head != ".otp" {
		return nil, false
	}
	return fields[1:], true
}
