package faq

import (
	"strings"
	"testing"

	"github.com/coursedesk/faqsearch/internal/domain"
)

func TestTableFor(t *testing.T) {
	if got := tableFor(domain.PartitionPublic); got != "faq" {
		t.Errorf("public table = %q, want faq", got)
	}
	if got := tableFor(domain.PartitionInternal); got != "faq_internal" {
		t.Errorf("internal table = %q, want faq_internal", got)
	}
}

func TestKeywordPatterns(t *testing.T) {
	patterns := keywordPatterns("환불 신청", []string{"환불", "신청"})

	want := []string{"%환불 신청%", "%환불%", "%신청%"}
	if len(patterns) != len(want) {
		t.Fatalf("got %d patterns, want %d", len(patterns), len(want))
	}
	for i := range want {
		if patterns[i] != want[i] {
			t.Errorf("pattern[%d] = %q, want %q", i, patterns[i], want[i])
		}
	}
}

func TestKeywordPatterns_NoTokens(t *testing.T) {
	patterns := keywordPatterns("a", nil)
	if len(patterns) != 1 || patterns[0] != "%a%" {
		t.Errorf("patterns = %v, want just the full query", patterns)
	}
}

func TestKeywordWhere(t *testing.T) {
	where := keywordWhere(2)

	if !strings.Contains(where, "question ILIKE $1") {
		t.Errorf("missing first placeholder condition: %s", where)
	}
	if !strings.Contains(where, "tag ILIKE $2") {
		t.Errorf("missing second placeholder condition: %s", where)
	}
	// 3 columns x 2 patterns: 2 inner ORs per group, 1 between the groups.
	if strings.Count(where, " OR ") != 5 {
		t.Errorf("unexpected OR count in %s", where)
	}
}
