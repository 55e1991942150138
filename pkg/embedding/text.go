package embedding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// maxTextLength keeps a rendered record within typical embedding input limits.
const maxTextLength = 8000

// RecordText renders a record as "key: value" lines sorted by key, headed
// by the model name. Empty values (nil, false, "", empty lists) are skipped
// and an (id, label) pair is rendered as its label.
func RecordText(model string, record models.Record) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("model: ")
	b.WriteString(model)
	for _, k := range keys {
		v, ok := renderValue(record[k])
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		if b.Len() > maxTextLength {
			break
		}
	}

	text := b.String()
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}
	return text
}

func renderValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case bool:
		if !val {
			return "", false
		}
		return "true", true
	case string:
		return val, val != ""
	case []any:
		if len(val) == 0 {
			return "", false
		}
		// many_to_one pairs arrive as [id, "label"].
		if len(val) == 2 {
			if _, isID := jsonutil.FlexibleInt64(val[0]); isID {
				if label, ok := val[1].(string); ok {
					return label, label != ""
				}
			}
		}
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := renderValue(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), len(parts) > 0
	default:
		return fmt.Sprint(val), true
	}
}
