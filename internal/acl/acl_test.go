package acl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAndMatchExact(t *testing.T) {
	content := "[DENY]\nexample.com:80\n[ALLOW]\n~cdn.example.com:*\n#blocked.example.com:443\n"
	path := writeTemp(t, content)

	table := New()
	if err := table.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if table.Count() != 2 {
		t.Fatalf("expected 2 non-comment rules, got %d", table.Count())
	}

	if g := table.Verdict("example.com", 80); g != GroupDeny {
		t.Fatalf("expected Deny, got %s", g)
	}
	if g := table.Verdict("foo.cdn.example.com", 9999); g != GroupAllow {
		t.Fatalf("expected Allow (fuzzy match), got %s", g)
	}
}

func TestVerdictDefaultsToAllowWhenNoRuleMatches(t *testing.T) {
	table := New()
	table.Push(GroupDeny, PrefixExact, "blocked.example.com", "*")

	if g := table.Verdict("unrelated.example.com", 443); g != GroupAllow {
		t.Fatalf("expected default Allow, got %s", g)
	}
}

func TestIgnorePrefixNeverMatches(t *testing.T) {
	table := New()
	table.Push(GroupDeny, PrefixIgnore, "example.com", "*")

	if _, ok := table.Match("example.com", 80); ok {
		t.Fatal("ignore-prefixed rules must never match")
	}
}

func TestFirstDeclaredRuleWins(t *testing.T) {
	// Push prepends and Match scans back to front; rules pushed in
	// declaration order keep the first one pushed (Allow) winning on a tie.
	table := New()
	table.Push(GroupAllow, PrefixExact, "example.com", "*")
	table.Push(GroupDeny, PrefixExact, "example.com", "*")

	if g := table.Verdict("example.com", 80); g != GroupAllow {
		t.Fatalf("expected the first-declared rule (Allow) to win, got %s", g)
	}
}

func TestLoadFileFirstDeclaredRuleWins(t *testing.T) {
	// example.com appears in both sections; the ALLOW line comes first in
	// the file and must win over the later DENY line on the same host.
	content := "[ALLOW]\nexample.com:*\n[DENY]\nexample.com:*\n"
	path := writeTemp(t, content)

	table := New()
	if err := table.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if g := table.Verdict("example.com", 80); g != GroupAllow {
		t.Fatalf("expected the first-declared (ALLOW) line to win, got %s", g)
	}
}

func TestSaveFileRoundTrips(t *testing.T) {
	table := New()
	table.Push(GroupDeny, PrefixExact, "example.com", "80")
	table.Push(GroupAllow, PrefixFuzzy, "cdn.example.com", "*")

	path := filepath.Join(t.TempDir(), "acl.txt")
	if err := table.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	reloaded := New()
	if err := reloaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if reloaded.Count() != 2 {
		t.Fatalf("expected 2 rules after round trip, got %d", reloaded.Count())
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acl.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
