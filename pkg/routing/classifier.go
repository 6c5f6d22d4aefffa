package routing

import (
	"sort"
	"strings"
)

// Classifier maps request paths to route classes by longest prefix.
type Classifier struct {
	rules []AllowlistRule
}

func NewClassifier(rules []AllowlistRule) *Classifier {
	copied := make([]AllowlistRule, 0, len(rules))
	for _, rule := range rules {
		rule.Prefix = strings.TrimSpace(rule.Prefix)
		if rule.Prefix == "" {
			continue
		}
		copied = append(copied, rule)
	}
	sort.SliceStable(copied, func(i, j int) bool {
		return len(copied[i].Prefix) > len(copied[j].Prefix)
	})
	return &Classifier{rules: copied}
}

func (c *Classifier) ClassifyPath(path string) RouteClass {
	for _, rule := range c.rules {
		if HasPathPrefixOnBoundary(path, rule.Prefix) {
			return rule.Class
		}
	}
	return RouteClassUnknown
}

// IsAPI reports whether errors on path should be rendered as JSON.
func (c *Classifier) IsAPI(path string) bool {
	return c.ClassifyPath(path) == RouteClassInternalAPI
}

func HasPathPrefixOnBoundary(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	if prefix == "/" || len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
