// Package telegram delivers outbound messages through the Telegram Bot API.
package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "dealwatch/internal/transport"
	logx "dealwatch/pkg/logx"
)

// TextLimit is the Bot API limit for one text message.
const TextLimit = 4096

// ErrTooLong is returned for plain text over TextLimit. Senders never split.
var ErrTooLong = errors.New("message exceeds telegram text limit")

type Config struct {
	Token   string
	APIURL  string        // override for tests or a local Bot API server
	Timeout time.Duration // HTTP timeout per request
	// RatePerSec paces sends; Telegram allows roughly one message per second
	// per chat. 0 selects 1/s.
	RatePerSec float64
	Burst      int
	// DryRun logs messages instead of sending them.
	DryRun bool
}

type Sender struct {
	bot    *tele.Bot
	lim    *rate.Limiter
	log    logx.Logger
	dryRun bool
}

// New builds a sender without contacting Telegram.
func New(cfg Config, log logx.Logger) (*Sender, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	burst := max(cfg.Burst, 1)
	s := &Sender{
		lim:    rate.NewLimiter(rate.Limit(rps), burst),
		log:    log.With(logx.String("comp", "telegram")),
		dryRun: cfg.DryRun,
	}
	if cfg.DryRun {
		return s, nil
	}

	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   cfg.Token,
		Client:  newHTTPClient(timeout),
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	s.bot = b
	return s, nil
}

// SendText sends text as one message. Plain text over TextLimit is rejected;
// formatted text is sized by the caller, which knows the visible length.
func (s *Sender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if opt.ParseMode == "" && kit.TextLen(text) > TextLimit {
		return kit.MessageRef{}, ErrTooLong
	}
	if err := s.lim.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}

	if s.dryRun {
		s.log.Info("dry run: message not sent",
			logx.Int64("chat_id", to.ChatID),
			logx.Int("length", kit.TextLen(text)),
			logx.String("text", text))
		return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}, nil
	}

	msg, err := s.bot.Send(&tele.Chat{ID: to.ChatID}, text, &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	})
	if err != nil {
		return kit.MessageRef{}, errors.Wrapf(err, "telegram send to %d", to.ChatID)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}
