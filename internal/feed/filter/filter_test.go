package filter

import (
	"testing"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

func mustCompile(t *testing.T, expr string) []domain.FilterRule {
	t.Helper()
	rules, err := Compile(expr)
	if err != nil {
		t.Fatalf("Compile(%q): %v", expr, err)
	}
	return rules
}

func TestEvaluateAcceptsOnTextMatch(t *testing.T) {
	rules := mustCompile(t, "A:linux")
	item := &domain.FeedItem{Title: "some.linux.iso.release", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected MatchAccepted, got %v", out.Status)
	}
}

func TestEvaluateRejectShortCircuits(t *testing.T) {
	rules := mustCompile(t, "R:xxx % A:linux")
	item := &domain.FeedItem{Title: "xxx.linux.release", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchRejected {
		t.Fatalf("expected MatchRejected, got %v", out.Status)
	}
	if out.RuleIndex != 0 {
		t.Fatalf("expected reject at rule 0, got %d", out.RuleIndex)
	}
}

func TestEvaluateRequireUnmetRejects(t *testing.T) {
	rules := mustCompile(t, "Q:hdtv % A:linux")
	item := &domain.FeedItem{Title: "linux.release.only", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchRejected {
		t.Fatalf("expected MatchRejected when Require term unmet, got %v", out.Status)
	}
}

func TestEvaluateNoMatchIsIgnored(t *testing.T) {
	rules := mustCompile(t, "A:nomatch")
	item := &domain.FeedItem{Title: "totally.different", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchIgnored {
		t.Fatalf("expected MatchIgnored, got %v", out.Status)
	}
}

func TestEvaluateWildcardGlob(t *testing.T) {
	rules := mustCompile(t, "A:*.s??e??.*")
	item := &domain.FeedItem{Title: "show.name.s01e02.mkv", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected glob match to accept, got %v", out.Status)
	}
}

func TestEvaluateSizeNumericComparison(t *testing.T) {
	rules := mustCompile(t, "A:size:>1GB")
	item := &domain.FeedItem{Title: "whatever", Size: 2 << 30, Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected size>1GB to accept a 2GB item, got %v", out.Status)
	}

	item.Size = 100 << 20 // 100MB
	out = Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchIgnored {
		t.Fatalf("expected size>1GB to ignore a 100MB item, got %v", out.Status)
	}
}

func TestEvaluateAgeComparison(t *testing.T) {
	rules := mustCompile(t, "A:age:<1h")
	now := time.Now()
	item := &domain.FeedItem{Title: "fresh item", Time: now.Add(-10 * time.Minute), Attrs: map[string]string{}}

	out := Evaluate(rules, item, now)
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected a 10-minute-old item to pass age<1h, got %v", out.Status)
	}

	item.Time = now.Add(-2 * time.Hour)
	out = Evaluate(rules, item, now)
	if out.Status != domain.MatchIgnored {
		t.Fatalf("expected a 2-hour-old item to fail age<1h, got %v", out.Status)
	}
}

func TestEvaluateGroupingAndOr(t *testing.T) {
	// (a OR b) AND c, written without precedence: grouping is required.
	rules := mustCompile(t, "A:( foo | bar ) baz")
	item := &domain.FeedItem{Title: "show.bar.baz.1080p", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected grouped OR/AND to accept, got %v", out.Status)
	}

	item.Title = "show.foo.1080p"
	out = Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchIgnored {
		t.Fatalf("expected missing baz term to reject match, got %v", out.Status)
	}
}

func TestEvaluateNegatedTerm(t *testing.T) {
	rules := mustCompile(t, "A:linux -xxx")
	item := &domain.FeedItem{Title: "linux.distro.release", Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected negated term to still accept a clean title, got %v", out.Status)
	}

	item.Title = "linux.xxx.release"
	out = Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchIgnored {
		t.Fatalf("expected negated term to reject a title containing xxx, got %v", out.Status)
	}
}

func TestEvaluateOptionsAppliedOnAccept(t *testing.T) {
	rules := mustCompile(t, "A(category:tv,priority:5,dupekey:${season}x${episode}):linux")
	item := &domain.FeedItem{Title: "linux.release", Season: 1, Episode: 2, Attrs: map[string]string{}}

	out := Evaluate(rules, item, time.Now())
	if out.Status != domain.MatchAccepted {
		t.Fatalf("expected accept, got %v", out.Status)
	}
	if out.Options.Category != "tv" {
		t.Fatalf("expected category option tv, got %q", out.Options.Category)
	}
	if out.Options.DupeKey != "1x2" {
		t.Fatalf("expected season/episode backreference expansion, got %q", out.Options.DupeKey)
	}
}

func TestParseSizeOrAgeSuffixes(t *testing.T) {
	cases := map[string]float64{
		"10":   10,
		"1K":   1024,
		"1KB":  1024,
		"1M":   1024 * 1024,
		"1MB":  1024 * 1024,
		"1G":   1024 * 1024 * 1024,
		"1GB":  1024 * 1024 * 1024,
		"60m":  3600,
		"1h":   3600,
		"2d":   172800,
	}
	for raw, want := range cases {
		got, err := ParseSizeOrAge(raw)
		if err != nil {
			t.Fatalf("ParseSizeOrAge(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseSizeOrAge(%q) = %v, want %v", raw, got, want)
		}
	}
}
