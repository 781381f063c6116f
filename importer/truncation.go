package importer

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// truncationMatchTimeout bounds a single regex evaluation over one string field
const truncationMatchTimeout = 200 * time.Millisecond

// TruncationMarkers are exact placeholders that mean the source was abbreviated.
var TruncationMarkers = []string{
	"[...]",
	"[…]",
	"[省略]",
	"[省略部分]",
	"[内容省略]",
	"[...omitted...]",
	"[remaining content omitted]",
	"[rest omitted]",
	"[truncated]",
}

// truncationPattern catches longer bracketed phrases such as "[... 200 more lines omitted]".
// The phrase must open with an ellipsis or a quantity keyword, so prose like
// "[see omitted fields]" does not count.
var truncationPattern = func() *regexp2.Regexp {
	re := regexp2.MustCompile(
		`\[(?:(?:\.\.\.|…)\s*|\s*(?:remaining|rest of|content|other|more)\b)[^\]\n]{0,40}(?:omitted|省略|truncated)[^\]\n]{0,20}\]`,
		regexp2.IgnoreCase)
	re.MatchTimeout = truncationMatchTimeout
	return re
}()

// FindTruncationMarker returns the first marker found in s.
func FindTruncationMarker(s string) (string, bool) {
	for _, m := range TruncationMarkers {
		if strings.Contains(s, m) {
			return m, true
		}
	}
	if !strings.Contains(s, "[") {
		return "", false
	}
	m, err := truncationPattern.FindStringMatch(s)
	if err != nil || m == nil {
		// a timed out match is treated as no marker
		return "", false
	}
	return m.String(), true
}

// DetectTruncation walks v through maps, slices, structs and pointers and reports the
// first string carrying a truncation marker together with its field path.
// Map keys are visited in sorted order so the reported field is stable.
func DetectTruncation(v any) (marker, field string, found bool) {
	return walkTruncation(reflect.ValueOf(v), "")
}

func walkTruncation(v reflect.Value, path string) (string, string, bool) {
	if !v.IsValid() {
		return "", "", false
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return "", "", false
		}
		return walkTruncation(v.Elem(), path)
	case reflect.String:
		if m, ok := FindTruncationMarker(v.String()); ok {
			return m, fieldName(path), true
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if m, f, ok := walkTruncation(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); ok {
				return m, f, true
			}
		}
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			if m, f, ok := walkTruncation(v.MapIndex(k), joinPath(path, fmt.Sprint(k.Interface()))); ok {
				return m, f, true
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				name = sf.Name
			}
			if m, f, ok := walkTruncation(v.Field(i), joinPath(path, name)); ok {
				return m, f, true
			}
		}
	}
	return "", "", false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func fieldName(path string) string {
	if path == "" {
		return "content"
	}
	return path
}
