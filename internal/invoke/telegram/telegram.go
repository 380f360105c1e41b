// Package telegram serves the telegram_bot mechanism family natively through
// the Bot API (telebot), without going through Home Assistant.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"uninotifier/internal/channel"
	"uninotifier/internal/invoke"
	logx "uninotifier/pkg/logx"
)

// sendTimeout bounds a single Bot API request.
const sendTimeout = 10 * time.Second

// Config configures the native Telegram backend.
type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (default https://api.telegram.org).
	APIURL string
	// DefaultChat is used when a payload names no target.
	DefaultChat string
	// PerChatRate caps messages per second to a single chat. Telegram starts
	// throttling above ~1/s per chat.
	PerChatRate float64
}

// sender is the part of *tele.Bot used here.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Invoker implements invoke.Invoker for the telegram_bot domain.
type Invoker struct {
	cfg Config
	log logx.Logger
	bot sender

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates the bot client. It verifies the token with getMe.
func New(cfg Config, log logx.Logger) (*Invoker, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    strings.TrimSpace(cfg.APIURL),
		Client: &http.Client{Timeout: sendTimeout},
	})
	if err != nil {
		return nil, err
	}
	return newInvoker(cfg, b, log), nil
}

func newInvoker(cfg Config, bot sender, log logx.Logger) *Invoker {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PerChatRate <= 0 {
		cfg.PerChatRate = 1
	}
	return &Invoker{cfg: cfg, log: log, bot: bot, limiters: map[string]*rate.Limiter{}}
}

// chatRef addresses a chat by numeric id or @username.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

func (i *Invoker) limiter(chat string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	lim, ok := i.limiters[chat]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(i.cfg.PerChatRate), 1)
		i.limiters[chat] = lim
	}
	return lim
}

// Invoke implements invoke.Invoker.
func (i *Invoker) Invoke(ctx context.Context, call invoke.Call) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := call.Payload
	targets := recipients(p[channel.FieldTarget])
	if len(targets) == 0 && strings.TrimSpace(i.cfg.DefaultChat) != "" {
		targets = []string{strings.TrimSpace(i.cfg.DefaultChat)}
	}
	if len(targets) == 0 {
		return fmt.Errorf("telegram: %s: no target chat", call.Mechanism)
	}

	opt := &tele.SendOptions{
		ParseMode:             parseMode(str(p[channel.FieldParseMode])),
		DisableWebPagePreview: boolean(p["disable_web_page_preview"]),
		DisableNotification:   boolean(p["disable_notification"]),
	}

	var errs []error
	for _, chat := range targets {
		if err := i.limiter(chat).Wait(ctx); err != nil {
			return err
		}
		if err := i.sendOne(chatRef(chat), call, opt); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chat, err))
			continue
		}
		i.log.Debug("telegram sent", logx.String("action", call.Mechanism.Action), logx.String("chat", chat))
	}
	return errors.Join(errs...)
}

func (i *Invoker) sendOne(to chatRef, call invoke.Call, opt *tele.SendOptions) error {
	p := call.Payload
	switch call.Mechanism.Action {
	case "send_message":
		text := str(p[channel.FieldMessage])
		if title := str(p[channel.FieldTitle]); title != "" {
			text = title + "\n" + text
		}
		for _, chunk := range splitText(text, textLimit, string(opt.ParseMode)) {
			if _, err := i.bot.Send(to, chunk, opt); err != nil {
				return err
			}
		}
		return nil
	case "send_photo", "send_video", "send_document":
		file, err := mediaFile(p)
		if err != nil {
			return err
		}
		caption := str(p[channel.FieldCaption])
		var what interface{}
		switch call.Mechanism.Action {
		case "send_photo":
			what = &tele.Photo{File: file, Caption: caption}
		case "send_video":
			what = &tele.Video{File: file, Caption: caption}
		default:
			what = &tele.Document{File: file, Caption: caption}
		}
		_, err = i.bot.Send(to, what, opt)
		return err
	default:
		return fmt.Errorf("%w: %s", invoke.ErrUnsupportedAction, call.Mechanism)
	}
}

func mediaFile(p map[string]any) (tele.File, error) {
	if u := str(p["url"]); u != "" {
		return tele.FromURL(u), nil
	}
	if f := str(p["file"]); f != "" {
		return tele.FromDisk(f), nil
	}
	return tele.File{}, errors.New("media payload needs url or file")
}

// parseMode maps Home Assistant style parse_mode values onto Bot API modes.
func parseMode(raw string) tele.ParseMode {
	m := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(m, "markdownv2"):
		return tele.ModeMarkdownV2
	case strings.Contains(m, "markdown"):
		return tele.ModeMarkdown
	case strings.Contains(m, "html"):
		return tele.ModeHTML
	default:
		return tele.ModeDefault
	}
}

// recipients normalizes a "target" payload value (string, number or list).
func recipients(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(x))
		for _, s := range x {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			out = append(out, recipients(it)...)
		}
		return out
	default:
		if s := str(x); s != "" {
			return []string{s}
		}
		return nil
	}
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func boolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	default:
		return false
	}
}
