package notifier

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"fintrack/internal/domain"
)

// Custom messages are plain text; the telegram gateway sends HTML, so
// markup is stripped and the rest escaped.
var strict = bluemonday.StrictPolicy()

type defaultText struct{ title, body string }

var defaults = map[Kind]defaultText{
	KindDaily: {
		title: "Daily check-in",
		body:  "Don't forget to log today's expenses.",
	},
	KindWeekly: {
		title: "Weekly review",
		body:  "Take a minute to review this week's spending.",
	},
	KindMonthlyIncome: {
		title: "Set your income",
		body:  "You haven't set your monthly income yet. Add it to keep your budget accurate.",
	},
}

// Render builds the payload of kind for u. A non-empty custom message in
// the user's preferences replaces the default body.
func Render(kind Kind, u domain.User) Payload {
	d := defaults[kind]
	p := Payload{Kind: kind, Title: d.title, Body: html.EscapeString(d.body)}

	var custom string
	switch kind {
	case KindDaily:
		custom = u.Preferences.Daily.Message
	case KindWeekly:
		custom = u.Preferences.Weekly.Message
	case KindMonthlyIncome:
		custom = u.Preferences.MonthlyIncome.Message
	}
	if body := sanitize(custom); body != "" {
		p.Body = body
	}
	if name := strings.TrimSpace(u.Name); name != "" && p.Title != "" {
		p.Title = p.Title + ", " + name
	}
	return p
}

func sanitize(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}
