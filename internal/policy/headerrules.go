package policy

import (
	"net/http"
	"regexp"
	"strings"
)

// HeaderRuleKind tags what a HeaderRule does to the outgoing subgraph
// request: forward an inbound header verbatim,
// forward it under a new name, insert a fixed value, or remove it.
type HeaderRuleKind uint8

const (
	HeaderForward HeaderRuleKind = iota
	HeaderRename
	HeaderInsert
	HeaderRemove
)

// HeaderRule is one compiled rule from the gateway's header-propagation
// policy. Name is matched literally; NamePattern, when non-nil, matches
// instead and takes precedence (a rule is either name- or pattern-keyed,
// never both).
type HeaderRule struct {
	Kind        HeaderRuleKind
	Name        string
	NamePattern *regexp.Regexp
	Rename      string   // HeaderRename target name
	Value       string   // HeaderInsert value
	Subgraphs   []string // empty means "all subgraphs"
}

// CompileHeaderRule compiles a raw pattern (as read from gateway config)
// into a rule, regexp-backed only when the pattern actually needs one.
func CompileHeaderRule(kind HeaderRuleKind, namePattern string, rename, value string, subgraphs []string) (HeaderRule, error) {
	rule := HeaderRule{Kind: kind, Rename: rename, Value: value, Subgraphs: subgraphs}
	if namePattern == "" {
		return rule, nil
	}
	if isLiteralHeaderName(namePattern) {
		rule.Name = namePattern
		return rule, nil
	}
	re, err := regexp.Compile(namePattern)
	if err != nil {
		return HeaderRule{}, err
	}
	rule.NamePattern = re
	return rule, nil
}

// isLiteralHeaderName reports whether s has no regexp metacharacters, so a
// rule author writing "x-request-id" gets an exact match instead of paying
// for a regexp compile on every request.
func isLiteralHeaderName(s string) bool {
	for _, r := range s {
		switch r {
		case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			return false
		}
	}
	return true
}

// appliesTo reports whether rule applies to a subgraph named name.
func (rule HeaderRule) appliesTo(name string) bool {
	if len(rule.Subgraphs) == 0 {
		return true
	}
	for _, s := range rule.Subgraphs {
		if s == name {
			return true
		}
	}
	return false
}

// matches reports whether rule's name selector matches header.
func (rule HeaderRule) matches(header string) bool {
	if rule.NamePattern != nil {
		return rule.NamePattern.MatchString(header)
	}
	// Header names are case-insensitive and http.Header keys arrive
	// canonicalised ("X-Request-Id"), so a literal name compares folded.
	return strings.EqualFold(rule.Name, header)
}

// ApplyHeaderRules builds the outgoing header set for one subgraph request
// from the inbound client headers and the gateway's rule list, applied in
// order (a later rule can undo an earlier one, matching the original's
// "rules apply in declaration order" behaviour).
func ApplyHeaderRules(rules []HeaderRule, subgraph string, inbound http.Header) http.Header {
	out := make(http.Header)
	for _, rule := range rules {
		if !rule.appliesTo(subgraph) {
			continue
		}
		switch rule.Kind {
		case HeaderForward:
			for name, values := range inbound {
				if rule.matches(name) {
					out[name] = append(append([]string(nil), out[name]...), values...)
				}
			}
		case HeaderRename:
			for name, values := range inbound {
				if rule.matches(name) {
					out[rule.Rename] = append(append([]string(nil), out[rule.Rename]...), values...)
				}
			}
		case HeaderInsert:
			out.Set(rule.Name, rule.Value)
		case HeaderRemove:
			for name := range inbound {
				if rule.matches(name) {
					out.Del(name)
				}
			}
		}
	}
	return out
}
