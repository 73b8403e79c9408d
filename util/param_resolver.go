package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`{(\$[^{}]*)}`)

// ResolveTemplate copies template, replacing every "{$.path}" token found in
// string values with the value at that jsonpath in args. A string made of a
// single token takes the looked-up value as is, so numbers and objects keep
// their type. Tokens that do not resolve become nil (single token) or are
// left untouched (embedded token).
func ResolveTemplate(args map[string]any, template map[string]any) map[string]any {
	if template == nil {
		return nil
	}
	out := make(map[string]any, len(template))
	for k, v := range template {
		out[k] = resolveValue(args, v)
	}
	return out
}

func resolveValue(args map[string]any, v any) any {
	switch val := v.(type) {
	case map[string]any:
		return ResolveTemplate(args, val)
	case []any:
		return resolveList(args, val)
	case string:
		return resolveString(args, val)
	default:
		return v
	}
}

func resolveList(args map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		output = append(output, resolveValue(args, v))
	}
	return output
}

func resolveString(args map[string]any, s string) any {
	matches := tokenPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s
	}
	if len(matches) == 1 && matches[0][0] == s {
		value, err := lookup(args, matches[0][1])
		if err != nil {
			return nil
		}
		return value
	}
	newStr := s
	for _, m := range matches {
		value, err := lookup(args, m[1])
		if err != nil {
			continue
		}
		newStr = strings.ReplaceAll(newStr, m[0], fmt.Sprintf("%v", value))
	}
	return newStr
}

func lookup(args map[string]any, path string) (any, error) {
	if args == nil {
		return nil, fmt.Errorf("no arguments to resolve %s", path)
	}
	return jsonpath.JsonPathLookup(args, path)
}
