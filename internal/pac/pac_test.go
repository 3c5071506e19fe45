package pac

import (
	"strings"
	"testing"

	"github.com/corridorproxy/corridor/internal/acl"
)

func TestGenerateRendersAllowAndDenyRules(t *testing.T) {
	rules := []acl.Rule{
		{Group: acl.GroupDeny, Prefix: acl.PrefixExact, Host: "example.com", Port: "*"},
		{Group: acl.GroupAllow, Prefix: acl.PrefixFuzzy, Host: "cdn.example.com", Port: "*"},
		{Group: acl.GroupDeny, Prefix: acl.PrefixIgnore, Host: "commented.example.com", Port: "*", Raw: "#commented.example.com:*"},
	}

	out := Generate(rules, "127.0.0.1:1080")

	if !strings.Contains(out, "function FindProxyForURL(url, host)") {
		t.Fatal("missing FindProxyForURL entry point")
	}
	if !strings.Contains(out, `host === "example.com"`) {
		t.Fatal("missing exact-match condition")
	}
	if !strings.Contains(out, `shExpMatch(host, "*cdn.example.com*")`) {
		t.Fatal("missing fuzzy-match condition")
	}
	if !strings.Contains(out, "PROXY 127.0.0.1:1080; DIRECT") {
		t.Fatal("missing proxy directive for allow rule")
	}
	if !strings.Contains(out, "// #commented.example.com:*") {
		t.Fatal("ignore-prefixed rule should render as a comment")
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "}") {
		t.Fatal("script should end with the closing brace")
	}
}

func TestGenerateEmptyTable(t *testing.T) {
	out := Generate(nil, "127.0.0.1:1080")
	if !strings.Contains(out, `return "DIRECT";`) {
		t.Fatal("empty table should still fall through to DIRECT")
	}
}
