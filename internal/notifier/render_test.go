package notifier

import (
	"strings"
	"testing"

	"fintrack/internal/domain"
)

func TestRenderDefaults(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindDaily, KindWeekly, KindMonthlyIncome} {
		p := Render(k, domain.User{ID: "u"})
		if p.Kind != k || p.Title == "" || p.Body == "" {
			t.Fatalf("Render(%s) = %+v", k, p)
		}
	}
}

func TestRenderCustomMessageSanitized(t *testing.T) {
	t.Parallel()

	u := domain.User{ID: "u", Name: "Ana"}
	u.Preferences.Weekly.Message = `<script>alert(1)</script>Review <b>now</b> & relax`

	p := Render(KindWeekly, u)
	if strings.Contains(p.Body, "<") {
		t.Fatalf("body still has markup: %q", p.Body)
	}
	if !strings.Contains(p.Body, "Review now &amp; relax") {
		t.Fatalf("body = %q", p.Body)
	}
	if !strings.HasSuffix(p.Title, ", Ana") {
		t.Fatalf("title = %q", p.Title)
	}
}

func TestRenderBlankCustomFallsBack(t *testing.T) {
	t.Parallel()

	u := domain.User{ID: "u"}
	u.Preferences.Daily.Message = "  <i></i>  "
	p := Render(KindDaily, u)
	if p.Body != Render(KindDaily, domain.User{}).Body {
		t.Fatalf("body = %q, want default", p.Body)
	}
}
