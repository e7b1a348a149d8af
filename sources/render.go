package sources

import (
	"fmt"
	"strings"
)

// RenderBlock renders records as the source block shown to the model:
// "-----\n<identifier> (modality: <type>): <content>\n-----\n" per record.
func RenderBlock(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "-----\n%s (modality: %s): %s\n-----\n", r.Identifier, r.Type, r.Content)
	}
	return b.String()
}

// RenderPlain renders identifier/content pairs without modality tags, the
// layout used by the evaluation prompts.
func RenderPlain(ids, contents []string) string {
	var b strings.Builder
	for i, c := range contents {
		id := ""
		if i < len(ids) {
			id = ids[i]
		}
		fmt.Fprintf(&b, "-----\n%s: %s\n-----\n", id, c)
	}
	return b.String()
}
