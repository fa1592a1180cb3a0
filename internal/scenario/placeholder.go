package scenario

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// #region substitute
// Substitute returns a copy of params with every {{ref}} in string values
// replaced by the resolved actor id. Unknown refs and unbalanced braces
// are errors.
func Substitute(params map[string]any, resolve map[string]string) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := substituteValue(params, resolve)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func substituteValue(v any, resolve map[string]string) (any, error) {
	switch t := v.(type) {
	case string:
		return substituteString(t, resolve)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			r, err := substituteValue(inner, resolve)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = r
		}
		return m, nil
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			r, err := substituteValue(inner, resolve)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			s[i] = r
		}
		return s, nil
	}
	return v, nil
}

func substituteString(s string, resolve map[string]string) (string, error) {
	if rest := placeholderRe.ReplaceAllString(s, ""); strings.Contains(rest, "{{") || strings.Contains(rest, "}}") {
		return "", fmt.Errorf("malformed placeholder in %q", s)
	}
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		ref := placeholderRe.FindStringSubmatch(m)[1]
		id, ok := resolve[ref]
		if !ok {
			if missing == "" {
				missing = ref
			}
			return m
		}
		return id
	})
	if missing != "" {
		return "", fmt.Errorf("unresolved placeholder {{%s}}", missing)
	}
	return out, nil
}

// #endregion substitute

// placeholderRefs lists the distinct refs named by placeholders in params.
func placeholderRefs(params map[string]any) []string {
	seen := map[string]bool{}
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range placeholderRe.FindAllStringSubmatch(t, -1) {
				seen[m[1]] = true
			}
		case map[string]any:
			for _, inner := range t {
				walk(inner)
			}
		case []any:
			for _, inner := range t {
				walk(inner)
			}
		}
	}
	walk(params)
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
