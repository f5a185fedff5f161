package segment

import "strings"

// CQ tag escaping. Plain text escapes the bracket and ampersand characters;
// parameter values additionally escape the comma that separates them.

var (
	textEscaper    = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	textUnescaper  = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")
	valueEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	valueUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")
)

func escapeText(s string) string    { return textEscaper.Replace(s) }
func unescapeText(s string) string  { return textUnescaper.Replace(s) }
func escapeValue(s string) string   { return valueEscaper.Replace(s) }
func unescapeValue(s string) string { return valueUnescaper.Replace(s) }

// Parse decodes a legacy CQ-encoded message string into its segment
// sequence. Text between tags becomes text segments; a bracketed tag that
// does not form a valid "[CQ:type,…]" expression is kept as literal text.
func Parse(s string) Segments {
	var out Segments
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			out = appendText(out, s)
			break
		}
		if start > 0 {
			out = appendText(out, s[:start])
			s = s[start:]
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			// unterminated tag, keep as text
			out = appendText(out, s)
			break
		}
		if seg, ok := parseTag(s[len("[CQ:"):end]); ok {
			out = append(out, seg)
		} else {
			out = appendText(out, s[:end+1])
		}
		s = s[end+1:]
	}
	return out
}

// parseTag decodes the "type,key=value,…" body of a CQ tag.
func parseTag(body string) (Segment, bool) {
	parts := strings.Split(body, ",")
	typ := parts[0]
	if typ == "" || typ == "text" {
		return Segment{}, false
	}
	data := make(Data, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(p, "=")
		if !found || k == "" {
			return Segment{}, false
		}
		data[k] = unescapeValue(v)
	}
	return Segment{Type: typ, Data: data}, true
}

// appendText adds a text segment, unescaping the raw run. Empty runs are
// dropped so round-trips stay stable.
func appendText(ss Segments, raw string) Segments {
	if raw == "" {
		return ss
	}
	return append(ss, Text(unescapeText(raw)))
}
