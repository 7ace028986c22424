package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/zabbix-web/pkg/config"
)

const phpIndent = "  "

var (
	singleQuoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	doubleQuoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
)

// phpSingleQuote escapes s for a single-quoted PHP string literal.
func phpSingleQuote(s string) string {
	return singleQuoteEscaper.Replace(s)
}

// phpDoubleQuote escapes s for a double-quoted PHP string literal.
func phpDoubleQuote(s string) string {
	return doubleQuoteEscaper.Replace(s)
}

// PHPArray serializes m as a PHP short array literal. Keys keep their order,
// nesting is indented by two spaces per level and entries are separated by
// ",\n". The opening bracket of the outermost array is followed by a space.
func PHPArray(m *config.OrderedMap) (string, error) {
	if m.Len() == 0 {
		return "[]", nil
	}

	var b strings.Builder
	b.WriteString("[ \n")
	if err := writeAssoc(&b, m, 1); err != nil {
		return "", err
	}
	b.WriteString("\n]")
	return b.String(), nil
}

func writeAssoc(b *strings.Builder, m *config.OrderedMap, depth int) error {
	indent := strings.Repeat(phpIndent, depth)
	for i, key := range m.Keys() {
		if i > 0 {
			b.WriteString(",\n")
		}
		value, _ := m.Get(key)
		b.WriteString(indent)
		b.WriteString(`"` + phpDoubleQuote(key) + `" => `)
		if err := writeValue(b, value, depth); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func writeList(b *strings.Builder, items []any, depth int) error {
	indent := strings.Repeat(phpIndent, depth)
	for i, item := range items {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(indent)
		if err := writeValue(b, item, depth); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// writeValue writes one value whose key sits at depth.
func writeValue(b *strings.Builder, value any, depth int) error {
	closing := strings.Repeat(phpIndent, depth)

	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case string:
		b.WriteString(`"` + phpDoubleQuote(v) + `"`)
	case json.Number:
		b.WriteString(v.String())
	case int:
		b.WriteString(strconv.Itoa(v))
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case *config.OrderedMap:
		if v.Len() == 0 {
			b.WriteString("[]")
			return nil
		}
		b.WriteString("[\n")
		if err := writeAssoc(b, v, depth+1); err != nil {
			return err
		}
		b.WriteString("\n" + closing + "]")
	case map[string]any:
		return writeValue(b, config.OrderedMapFromMap(v), depth)
	case []any:
		if len(v) == 0 {
			b.WriteString("[]")
			return nil
		}
		b.WriteString("[\n")
		if err := writeList(b, v, depth+1); err != nil {
			return err
		}
		b.WriteString("\n" + closing + "]")
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return writeValue(b, items, depth)
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
	return nil
}
