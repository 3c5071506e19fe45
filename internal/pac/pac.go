// Package pac renders a Proxy Auto-Config (PAC) script body from an ACL
// rule table. Generate is a pure function with no listener of its own.
package pac

import (
	"fmt"
	"strings"

	"github.com/corridorproxy/corridor/internal/acl"
)

// Generate renders a FindProxyForURL script: one if-statement per rule, in
// file declaration order (first rule checked first, matching acl.Table's
// match priority), routing matched Allow hosts through proxyAddr and
// matched Deny hosts DIRECT. Unmatched hosts fall through to the default
// DIRECT statement at the end; unlike acl.Table.Verdict, whose no-match
// default is Allow, the script sends unmatched hosts direct.
func Generate(rules []acl.Rule, proxyAddr string) string {
	var statements []string
	for i := len(rules) - 1; i >= 0; i-- {
		statements = append(statements, renderRule(rules[i], proxyAddr))
	}

	var b strings.Builder
	b.WriteString("function FindProxyForURL(url, host) {\n")
	b.WriteString("  var port = (function() {\n")
	b.WriteString("    var m = /^[a-zA-Z0-9+.-]+:\\/\\/[^\\/]*:(\\d+)/.exec(url);\n")
	b.WriteString("    return m ? parseInt(m[1], 10) : null;\n")
	b.WriteString("  })();\n\n")
	for _, s := range statements {
		fmt.Fprintf(&b, "  %s\n", s)
	}
	b.WriteString("\n  return \"DIRECT\";\n}\n")
	return b.String()
}

func renderRule(r acl.Rule, proxyAddr string) string {
	if r.Prefix == acl.PrefixIgnore {
		return "// " + r.Raw
	}

	var conditions []string
	if r.Host != "*" && r.Host != "" {
		switch r.Prefix {
		case acl.PrefixExact:
			conditions = append(conditions, fmt.Sprintf(`host === "%s"`, r.Host))
		case acl.PrefixFuzzy:
			conditions = append(conditions, fmt.Sprintf(`shExpMatch(host, "*%s*")`, r.Host))
		}
	}
	if r.Port != "*" && r.Port != "" {
		conditions = append(conditions, fmt.Sprintf("port === %s", r.Port))
	}

	condition := "true"
	if len(conditions) > 0 {
		condition = strings.Join(conditions, " && ")
	}

	var result string
	if r.Group == acl.GroupAllow {
		result = fmt.Sprintf("PROXY %s; DIRECT", proxyAddr)
	} else {
		result = "DIRECT"
	}

	return fmt.Sprintf(`if (%s) return "%s";`, condition, result)
}
