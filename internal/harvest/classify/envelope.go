// Package classify turns raw channel messages into labelled, tagged alerts.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Envelope is the typed view of a message payload that the classifier and
// extractors work on. Payloads re-read from mongo carry primitive.M/D/A values;
// Parse normalizes them first.
type Envelope struct {
	TS string

	HasClientMsgID bool
	BotProfile     *BotProfile
	HasSubtype     bool
	Subtype        string

	Title    string
	Text     string
	Fallback string

	Attachments []Attachment
	Files       []File

	// Serialized is the payload as canonical JSON; keyword and URL patterns
	// are matched against it.
	Serialized string
}

type BotProfile struct {
	Name string
}

type Attachment struct {
	Title            string
	Text             string
	Fallback         string
	HasAuthorSubname bool
	Fields           []Field
}

type Field struct {
	Title string
	Value string
}

type File struct {
	PlainText        string
	PreviewPlainText string
	// DisplayAsBot is nil when the file carries no display_as_bot flag.
	DisplayAsBot *bool
}

// Parse builds an Envelope from a raw payload.
func Parse(payload map[string]any) Envelope {
	m := normalizeMap(payload)

	env := Envelope{
		TS:       stringOf(m["ts"]),
		Title:    stringOf(m["title"]),
		Text:     stringOf(m["text"]),
		Fallback: stringOf(m["fallback"]),
	}
	_, env.HasClientMsgID = m["client_msg_id"]
	if subtype, ok := m["subtype"]; ok {
		env.HasSubtype = true
		env.Subtype = stringOf(subtype)
	}
	if bp, ok := m["bot_profile"]; ok {
		profile := &BotProfile{}
		if bpm, ok := bp.(map[string]any); ok {
			profile.Name = stringOf(bpm["name"])
		}
		env.BotProfile = profile
	}

	for _, item := range sliceOf(m["attachments"]) {
		am, ok := item.(map[string]any)
		if !ok {
			continue
		}
		att := Attachment{
			Title:    stringOf(am["title"]),
			Text:     stringOf(am["text"]),
			Fallback: stringOf(am["fallback"]),
		}
		_, att.HasAuthorSubname = am["author_subname"]
		for _, f := range sliceOf(am["fields"]) {
			if fm, ok := f.(map[string]any); ok {
				att.Fields = append(att.Fields, Field{Title: stringOf(fm["title"]), Value: stringOf(fm["value"])})
			}
		}
		env.Attachments = append(env.Attachments, att)
	}

	for _, item := range sliceOf(m["files"]) {
		fm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		file := File{
			PlainText:        stringOf(fm["plain_text"]),
			PreviewPlainText: stringOf(fm["preview_plain_text"]),
		}
		if v, ok := fm["display_as_bot"].(bool); ok {
			file.DisplayAsBot = &v
		}
		env.Files = append(env.Files, file)
	}

	env.Serialized = serialize(m)
	return env
}

func serialize(m map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return fmt.Sprint(m)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts the mongo primitive containers into plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case primitive.M:
		return normalizeMap(t)
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case []any:
		return normalizeSlice(t)
	case primitive.A:
		return normalizeSlice(t)
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = normalize(v)
	}
	return out
}

func sliceOf(v any) []any {
	if v == nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		return arr
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
