package field

import (
	"fmt"
	"strconv"
)

// Choice is one option of a select field.
type Choice struct {
	Value string
	Label string
}

// Choices builds choices whose label equals their value.
func Choices(values ...string) []Choice {
	out := make([]Choice, 0, len(values))
	for _, v := range values {
		out = append(out, Choice{Value: v, Label: v})
	}

	return out
}

// ParseChoices converts decoded configuration values into choices. An entry is
// either a bare value, a [value, label] pair or a table with "value" and "label" keys.
// Bare values and tables without a label use the value as the label; explicit
// labels are kept unchanged, even when empty.
func ParseChoices(raw []any) ([]Choice, error) {
	out := make([]Choice, 0, len(raw))

	for i, entry := range raw {
		switch v := entry.(type) {
		case string:
			out = append(out, Choice{Value: v, Label: v})
		case []any:
			if len(v) != 2 {
				return nil, fmt.Errorf("choice #%d: expected [value, label], got %d elements", i, len(v))
			}

			out = append(out, Choice{Value: scalar(v[0]), Label: scalar(v[1])})
		case []string:
			if len(v) != 2 {
				return nil, fmt.Errorf("choice #%d: expected [value, label], got %d elements", i, len(v))
			}

			out = append(out, Choice{Value: v[0], Label: v[1]})
		case map[string]any:
			value, ok := v["value"]
			if !ok {
				return nil, fmt.Errorf("choice #%d: table has no value", i)
			}

			c := Choice{Value: scalar(value), Label: scalar(value)}
			if label, ok := v["label"]; ok {
				c.Label = scalar(label)
			}

			out = append(out, c)
		case int64, int, float64, bool:
			s := scalar(v)
			out = append(out, Choice{Value: s, Label: s})
		default:
			return nil, fmt.Errorf("choice #%d: unsupported type %T", i, entry)
		}
	}

	return out, nil
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
