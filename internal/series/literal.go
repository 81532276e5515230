package series

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeIntList decodes a sequence literal such as "[3, 17, 42]" or "(3, 17)".
func DecodeIntList(s string) ([]int, error) {
	items, err := splitLiteral(s)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(items))
	for i, item := range items {
		v, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// DecodeFloatList decodes a sequence literal such as "[0.25, 0.125, nan]".
func DecodeFloatList(s string) ([]float64, error) {
	items, err := splitLiteral(s)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		v, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// EncodeIntList renders values in the literal form read by DecodeIntList.
func EncodeIntList(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// EncodeFloatList renders values with the shortest representation that
// decodes back to the same float64.
func EncodeFloatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func splitLiteral(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return nil, fmt.Errorf("not a sequence literal")
	}
	open, closing := s[0], s[len(s)-1]
	if !(open == '[' && closing == ']') && !(open == '(' && closing == ')') {
		return nil, fmt.Errorf("not a sequence literal")
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []string{}, nil
	}
	// A single trailing comma is valid ("(3,)").
	body = strings.TrimSuffix(body, ",")
	items := strings.Split(body, ",")
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("empty element %d", i)
		}
		items[i] = item
	}
	return items, nil
}
