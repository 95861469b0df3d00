package jira

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlattenDescription converts a raw description field to plain text.
// Descriptions arrive as an ADF document on Jira Cloud or as a plain JSON
// string on Server/DC. A document that fails to parse flattens to ""; the
// surrounding sync must never abort over a malformed description.
func FlattenDescription(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return FlattenDocument(&doc)
}

// FlattenDocument renders an ADF document as plain text: paragraphs joined
// by a blank line, ordered lists as numbered "<n>. <text>" lines.
func FlattenDocument(doc *Document) string {
	if doc == nil {
		return ""
	}

	var blocks []string
	for _, block := range doc.Content {
		switch block.Type {
		case "orderedList":
			var items []string
			for i, listItem := range block.Content {
				var itemText []string
				for _, paragraph := range listItem.Content {
					for _, inline := range paragraph.Content {
						if inline.Type == "text" {
							itemText = append(itemText, inline.Text)
						}
					}
				}
				items = append(items, fmt.Sprintf("%d. %s", i+1, strings.Join(itemText, "")))
			}
			blocks = append(blocks, strings.Join(items, "\n"))
		case "paragraph":
			var parts []string
			for _, inline := range block.Content {
				if inline.Type == "text" {
					parts = append(parts, inline.Text)
				}
			}
			blocks = append(blocks, strings.Join(parts, ""))
		}
	}

	return strings.Join(blocks, "\n\n")
}

// CommentText extracts the inline text of a comment document, one line per
// text node. Media and attachment nodes contribute nothing here; the
// harvester walks them separately.
func CommentText(doc *Document) string {
	if doc == nil {
		return ""
	}
	var lines []string
	for _, block := range doc.Content {
		for _, inline := range block.Content {
			if inline.Type == "text" {
				lines = append(lines, inline.Text)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// ComposeDocument wraps plain text into the minimal ADF form: one
// paragraph holding one text node. Used for outgoing comments and
// description updates.
func ComposeDocument(text string) *Document {
	return &Document{
		Version: 1,
		Type:    "doc",
		Content: []Node{
			{
				Type: "paragraph",
				Content: []Node{
					{Type: "text", Text: text},
				},
			},
		},
	}
}

// ParseDocument decodes a raw comment body into a Document. Returns nil
// for plain-string bodies and malformed documents.
func ParseDocument(raw json.RawMessage) *Document {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	if doc.Type != "doc" {
		return nil
	}
	return &doc
}

// PlainBody decodes a raw comment body as a plain string. Returns "" and
// false when the body is a structured document.
func PlainBody(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}
