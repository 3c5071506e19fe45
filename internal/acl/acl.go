// Package acl implements the access-control rule table consulted by
// Outbound before dialing: an ordered list of host:port rules, each either
// an exact match, a fuzzy (substring) match, or a comment to ignore, each
// tagged Allow or Deny.
package acl

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// Group is which side of the proxy/direct decision a Rule votes for.
type Group string

const (
	GroupAllow Group = "ALLOW"
	GroupDeny  Group = "DENY"
)

// Prefix identifies a rule line's leading character.
type Prefix int

const (
	PrefixExact Prefix = iota
	PrefixFuzzy
	PrefixIgnore
)

func (p Prefix) char() string {
	switch p {
	case PrefixFuzzy:
		return "~"
	case PrefixIgnore:
		return "#"
	default:
		return ""
	}
}

// Rule is one line of an ACL file: "[prefix]host:port", tagged with the
// group (Allow/Deny section) it was read under.
type Rule struct {
	Raw    string
	Group  Group
	Prefix Prefix
	Host   string // "*" or a literal host
	Port   string // "*" or a literal port
}

func (r Rule) matchPort(port uint16) bool {
	if r.Port == "*" || r.Port == "" {
		return true
	}
	return r.Port == strconv.Itoa(int(port))
}

func (r Rule) isMatch(host string, port uint16) bool {
	if r.Host != "*" && r.Host != host {
		return false
	}
	return r.matchPort(port)
}

func (r Rule) isFuzzyMatch(host string, port uint16) bool {
	if r.Host != "*" && !strings.Contains(host, r.Host) {
		return false
	}
	return r.matchPort(port)
}

// Table is the shared, read-mostly rule list, protected by a lock.
type Table struct {
	mu    sync.Mutex
	rules []Rule
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Push prepends a rule. Match scans the table back to front, so a pushed
// rule is checked after every rule pushed before it: pushing rules in
// declaration order keeps the first-declared rule winning.
func (t *Table) Push(group Group, prefix Prefix, host, port string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append([]Rule{{
		Raw:    prefix.char() + host + ":" + port,
		Group:  group,
		Prefix: prefix,
		Host:   host,
		Port:   port,
	}}, t.rules...)
}

// Match walks the stored slice back to front, which is declaration order
// (first rule in the file wins), returning the first rule whose prefix isn't Ignore and whose host
// and port both match.
func (t *Table) Match(host string, port uint16) (Rule, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.rules) - 1; i >= 0; i-- {
		r := t.rules[i]
		switch r.Prefix {
		case PrefixExact:
			if r.isMatch(host, port) {
				return r, true
			}
		case PrefixFuzzy:
			if r.isFuzzyMatch(host, port) {
				return r, true
			}
		case PrefixIgnore:
			// comment line, never matches
		}
	}
	return Rule{}, false
}

// Verdict reports whether host:port should be proxied (Allow) or relayed
// direct (Deny). With no matching rule, the default is Allow.
func (t *Table) Verdict(host string, port uint16) Group {
	if r, ok := t.Match(host, port); ok {
		return r.Group
	}
	return GroupAllow
}

// Count returns the number of non-comment rules loaded.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.rules {
		if r.Prefix != PrefixIgnore {
			n++
		}
	}
	return n
}

// Rules returns a snapshot copy of the table in storage order (the reverse
// of declaration order; walk it back to front to visit rules in match
// order), for callers like internal/pac that need to render every rule.
func (t *Table) Rules() []Rule {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// LoadFile replaces the table's contents with the rules parsed from path.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cerrors.NewBootstrapError("acl_load", err)
	}
	defer f.Close()

	rules, err := parse(f)
	if err != nil {
		return cerrors.NewBootstrapError("acl_load", err)
	}

	t.mu.Lock()
	t.rules = rules
	t.mu.Unlock()
	return nil
}

// SaveFile writes the table back out in the [ALLOW]/[DENY] file format.
func (t *Table) SaveFile(path string) error {
	content := t.serialize()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return cerrors.NewBootstrapError("acl_save", err)
	}
	return nil
}

func parse(f *os.File) ([]Rule, error) {
	var rules []Rule
	group := GroupDeny

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		item := strings.Fields(line)[0]
		switch strings.ToUpper(item) {
		case "[ALLOW]":
			group = GroupAllow
			continue
		case "[DENY]":
			group = GroupDeny
			continue
		}

		prefix := PrefixExact
		value := item
		switch item[0] {
		case '~':
			prefix = PrefixFuzzy
			value = item[1:]
		case '#':
			prefix = PrefixIgnore
			value = item[1:]
		}

		host, port, _ := strings.Cut(value, ":")
		if host == "" {
			host = "*"
		}
		if port == "" {
			port = "*"
		}

		rules = append(rules, Rule{Raw: line, Group: group, Prefix: prefix, Host: host, Port: port})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Match scans the table back-to-front so the earliest-declared rule is
	// checked first (the same convention Push establishes by prepending);
	// reverse here so a rule parsed from line 1 ends up at the high index
	// Match visits first, and the last line in the file is checked last.
	for i, j := 0, len(rules)-1; i < j; i, j = i+1, j-1 {
		rules[i], rules[j] = rules[j], rules[i]
	}
	return rules, nil
}

// serialize renders the table back to the [ALLOW]/[DENY] section format,
// grouping consecutive same-group rules (in declaration order, the same
// order Match consults them in) under one section header.
func (t *Table) serialize() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	i := len(t.rules) - 1
	for i >= 0 {
		group := t.rules[i].Group
		j := i
		for j >= 0 && t.rules[j].Group == group {
			j--
		}
		fmt.Fprintf(&b, "[%s]\n\n", group)
		for k := i; k > j; k-- {
			r := t.rules[k]
			fmt.Fprintf(&b, "%s%s:%s\n", r.Prefix.char(), r.Host, r.Port)
		}
		b.WriteString("\n")
		i = j
	}
	return b.String()
}
