// Package segment implements the message segment model shared by both wire
// encodings of the bot protocol. A message is an ordered sequence of typed
// segments; the canonical wire form is a JSON array of {type, data} objects,
// the legacy form inlines the same segments into a single string using
// bracketed CQ tags. See cq.go for the tag codec.
package segment

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Segment is one typed unit of a message: a run of plain text or a
// function-call segment such as an at-mention, an image or a reply marker.
type Segment struct {
	Type string `json:"type"`
	Data Data   `json:"data"`
}

// Data holds a segment's parameters. All values are strings on the legacy
// wire; structured-array frames may carry numbers or booleans, which are
// stringified on decode so both encodings produce identical segments.
type Data map[string]string

// UnmarshalJSON accepts arbitrary scalar parameter values and renders them
// as strings, preserving integer precision via json.Number.
func (d *Data) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	m := make(Data, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			m[k] = t
		case json.Number:
			m[k] = t.String()
		case bool:
			if t {
				m[k] = "true"
			} else {
				m[k] = "false"
			}
		case nil:
			m[k] = ""
		default:
			enc, err := json.Marshal(t)
			if err != nil {
				return err
			}
			m[k] = string(enc)
		}
	}
	*d = m
	return nil
}

// Segments is an ordered message. It unmarshals from either wire encoding:
// a JSON array of segments is taken as-is, a JSON string is decoded from the
// legacy CQ tag form. It always marshals to the structured-array form.
type Segments []Segment

// UnmarshalJSON decodes either encoding of a message field.
func (ss *Segments) UnmarshalJSON(b []byte) error {
	t := bytes.TrimLeft(b, " \t\r\n")
	if len(t) > 0 && t[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*ss = Parse(s)
		return nil
	}
	var raw []Segment
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*ss = Segments(raw)
	return nil
}

// String renders the message in the legacy CQ tag form. Parse is its
// faithful inverse: Parse(ss.String()) yields an equal sequence for any
// message whose text segments are non-empty and non-adjacent.
func (ss Segments) String() string {
	var b strings.Builder
	for _, seg := range ss {
		if seg.Type == "text" {
			b.WriteString(escapeText(seg.Data["text"]))
			continue
		}
		b.WriteString("[CQ:")
		b.WriteString(seg.Type)
		keys := make([]string, 0, len(seg.Data))
		for k := range seg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(',')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(escapeValue(seg.Data[k]))
		}
		b.WriteByte(']')
	}
	return b.String()
}

// ExtractText concatenates the plain-text segments of the message.
func (ss Segments) ExtractText() string {
	var b strings.Builder
	for _, seg := range ss {
		if seg.Type == "text" {
			b.WriteString(seg.Data["text"])
		}
	}
	return b.String()
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// Text builds a plain-text segment.
func Text(text string) Segment {
	return Segment{Type: "text", Data: Data{"text": text}}
}

// At builds an at-mention segment. qq is the target user ID.
func At(qq string) Segment {
	return Segment{Type: "at", Data: Data{"qq": qq}}
}

// AtAll builds an at-everyone segment.
func AtAll() Segment {
	return Segment{Type: "at", Data: Data{"qq": "all"}}
}

// Face builds a built-in emoticon segment.
func Face(id string) Segment {
	return Segment{Type: "face", Data: Data{"id": id}}
}

// Image builds an image segment. file is a filename, URL or base64 URI.
func Image(file string) Segment {
	return Segment{Type: "image", Data: Data{"file": file}}
}

// Record builds a voice recording segment.
func Record(file string) Segment {
	return Segment{Type: "record", Data: Data{"file": file}}
}

// Video builds a short-video segment.
func Video(file string) Segment {
	return Segment{Type: "video", Data: Data{"file": file}}
}

// Reply builds a reply marker referencing an earlier message by ID.
func Reply(id string) Segment {
	return Segment{Type: "reply", Data: Data{"id": id}}
}

// Share builds a link-share card segment.
func Share(url, title string) Segment {
	return Segment{Type: "share", Data: Data{"url": url, "title": title}}
}

// Music builds a music-share segment. kind is the platform ("qq", "163", …).
func Music(kind, id string) Segment {
	return Segment{Type: "music", Data: Data{"type": kind, "id": id}}
}
