// Package headers implements the configurable outgoing-header rewrite
// engine applied by every provider driver before a request leaves the
// gateway.
package headers

import (
	"net/http"
	"regexp"
	"strings"
)

// denyList is never forwarded to an upstream provider, even if a Forward
// rule would otherwise match — these are hop-by-hop or connection-specific
// headers that make no sense relayed across a proxy boundary.
var denyList = map[string]bool{
	"Accept":                     true,
	"Accept-Charset":             true,
	"Accept-Encoding":            true,
	"Accept-Ranges":              true,
	"Content-Length":             true,
	"Content-Type":               true,
	"Connection":                 true,
	"Keep-Alive":                 true,
	"Proxy-Authenticate":         true,
	"Proxy-Authorization":        true,
	"Te":                         true,
	"Trailer":                    true,
	"Transfer-Encoding":          true,
	"Upgrade":                    true,
	"Origin":                     true,
	"Host":                       true,
	"Sec-Websocket-Version":      true,
	"Sec-Websocket-Key":          true,
	"Sec-Websocket-Accept":       true,
	"Sec-Websocket-Protocol":     true,
	"Sec-Websocket-Extensions":   true,
}

// IsDenied reports whether name is in the fixed deny-list.
func IsDenied(name string) bool {
	return denyList[http.CanonicalHeaderKey(name)]
}

// NameOrPattern is either a literal header name or a compiled regex over
// header names. Names containing any of `*?[(` are treated as patterns.
type NameOrPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// ParseNameOrPattern classifies s and, if it looks like a pattern, compiles
// it. Returns false if a pattern fails to compile.
func ParseNameOrPattern(s string) (NameOrPattern, bool) {
	if strings.ContainsAny(s, "*?[(") {
		re, err := regexp.Compile(s)
		if err != nil {
			return NameOrPattern{}, false
		}
		return NameOrPattern{Pattern: re}, true
	}
	return NameOrPattern{Name: http.CanonicalHeaderKey(s)}, true
}

func (p NameOrPattern) matches(key string) bool {
	if p.Pattern != nil {
		return p.Pattern.MatchString(key)
	}
	return http.CanonicalHeaderKey(key) == p.Name
}

// RuleKind tags a Rule's variant.
type RuleKind int

const (
	KindForward RuleKind = iota
	KindInsert
	KindRemove
	KindRenameDuplicate
)

// Rule is one step of the header rewrite pipeline, applied in declared order.
type Rule struct {
	Kind RuleKind

	// Forward / Remove
	Name NameOrPattern

	// Forward
	Rename  string
	Default string

	// Insert
	InsertName  string
	InsertValue string

	// RenameDuplicate
	DupName   string
	DupRename string
	DupDefault string
}

// Apply runs rules in order against incoming and returns the header set to
// send upstream. An empty rule list forwards nothing (the default posture
// is deny-all; provider configs opt headers in explicitly).
func Apply(incoming http.Header, rules []Rule) http.Header {
	result := http.Header{}
	if len(rules) == 0 {
		return result
	}

	for _, rule := range rules {
		switch rule.Kind {
		case KindForward:
			applyForward(incoming, rule, result)
		case KindInsert:
			result.Set(rule.InsertName, rule.InsertValue)
		case KindRemove:
			applyRemove(rule, result)
		case KindRenameDuplicate:
			applyRenameDuplicate(incoming, rule, result)
		}
	}

	return result
}

func applyForward(incoming http.Header, rule Rule, result http.Header) {
	if rule.Name.Pattern == nil {
		name := rule.Name.Name
		if IsDenied(name) {
			return
		}
		result.Del(name)

		value := incoming.Get(name)
		if value == "" {
			value = rule.Default
		}
		if value == "" {
			return
		}

		if rule.Rename != "" {
			result.Set(rule.Rename, value)
		} else {
			result.Set(name, value)
		}
		return
	}

	for key, values := range incoming {
		if IsDenied(key) || !rule.Name.matches(key) || len(values) == 0 {
			continue
		}
		if rule.Rename != "" {
			result.Set(rule.Rename, values[0])
		} else {
			result.Set(key, values[0])
		}
	}
}

func applyRemove(rule Rule, result http.Header) {
	if rule.Name.Pattern == nil {
		result.Del(rule.Name.Name)
		return
	}
	for key := range result {
		if rule.Name.matches(key) {
			result.Del(key)
		}
	}
}

func applyRenameDuplicate(incoming http.Header, rule Rule, result http.Header) {
	value := incoming.Get(rule.DupName)
	if value == "" {
		value = rule.DupDefault
	}
	if value == "" {
		return
	}
	result.Set(rule.DupName, value)
	result.Set(rule.DupRename, value)
}
