// Package telegram delivers push messages through the Telegram Bot API.
// An endpoint token is the numeric chat ID of the user's conversation with the bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"fintrack/internal/transport/push"
	logx "fintrack/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec bounds outgoing sends (Telegram allows ~30 msg/s per bot).
	RatePerSec int
	Timeout    time.Duration
}

// sender is the subset of *tele.Bot the gateway needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Gateway struct {
	bot     sender
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Gateway, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newGateway(b, cfg.RatePerSec, log), nil
}

func newGateway(bot sender, ratePerSec int, log logx.Logger) *Gateway {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log.With(logx.String("comp", "push.telegram")),
	}
}

func (g *Gateway) Send(ctx context.Context, msgs []push.Message) ([]push.Outcome, error) {
	out := make([]push.Outcome, len(msgs))
	for i, m := range msgs {
		out[i] = push.Outcome{Token: m.Token}

		chatID, err := strconv.ParseInt(strings.TrimSpace(m.Token), 10, 64)
		if err != nil || chatID == 0 {
			out[i].Reason = push.ReasonInvalidEndpoint
			out[i].Err = fmt.Errorf("token %q is not a chat id", m.Token)
			continue
		}
		if err := g.limiter.Wait(ctx); err != nil {
			// Context ended: the rest of the batch stays untried.
			for j := i; j < len(msgs); j++ {
				out[j] = push.Outcome{Token: msgs[j].Token, Reason: push.ReasonTransient, Err: err}
			}
			return out, nil
		}

		_, err = g.bot.Send(tele.ChatID(chatID), formatHTML(m), &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		if err != nil {
			out[i].Reason, out[i].RetryAfter = classify(err)
			out[i].Err = err
			g.log.Debug("send failed", logx.String("reason", out[i].Reason.String()), logx.Err(err))
			continue
		}
		out[i].OK = true
	}
	return out, nil
}

// formatHTML renders a bold title over the body. Body is expected to be
// sanitized HTML already; the title is escaped.
func formatHTML(m push.Message) string {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return m.Body
	}
	return "<b>" + html.EscapeString(title) + "</b>\n" + m.Body
}

// classify maps Bot API errors to push reasons. Chats that blocked the bot
// or no longer exist are invalid endpoints; flood control is rate limiting;
// everything else is transient.
func classify(err error) (push.Reason, time.Duration) {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrKickedFromGroup):
		return push.ReasonInvalidEndpoint, 0
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return push.ReasonRateLimited, time.Duration(flood.RetryAfter) * time.Second
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return push.ReasonRateLimited, time.Duration(floodPtr.RetryAfter) * time.Second
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			return push.ReasonInvalidEndpoint, 0
		case http.StatusTooManyRequests:
			return push.ReasonRateLimited, 0
		}
	}
	return push.ReasonTransient, 0
}
