package validation

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"slices"
	"strconv"

	"userdata-gateway/userdata/domain"

	"github.com/pkg/errors"
)

// maior inteiro que um float64 representa sem perda
const maxSafeInt = 1 << 53

// Validate confere body contra a tabela de kind e devolve a mutação normalizada.
//
// A ordem das checagens é fixa (chaves desconhecidas em ordem alfabética,
// cardinalidade, depois a ordem da tabela), então o mesmo corpo sempre falha
// no mesmo campo.
func Validate(kind domain.EndpointKind, body []byte) (domain.Mutation, error) {
	rs, ok := ruleSets[kind]
	if !ok {
		return nil, invalid(kind, "", "unknown endpoint kind")
	}

	fields, err := decodeObject(body)
	if err != nil {
		return nil, invalid(kind, "", err.Error())
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, ok := rs.lookup(k); !ok {
			return nil, invalid(kind, k, "unknown field")
		}
	}

	if rs.exactlyOne {
		if len(fields) != 1 {
			return nil, invalid(kind, "", "exactly one field is required, got "+strconv.Itoa(len(fields)))
		}
	} else {
		for _, r := range rs.rules {
			if _, ok := fields[r.Field]; !ok {
				return nil, invalid(kind, r.Field, "required")
			}
		}
	}

	values := make(map[string]any, len(fields))
	for _, r := range rs.rules {
		raw, ok := fields[r.Field]
		if !ok {
			continue
		}
		v, reason := check(r.Type, raw)
		if reason != "" {
			return nil, invalid(kind, r.Field, reason)
		}
		values[r.Field] = v
	}

	return build(kind, values), nil
}

func build(kind domain.EndpointKind, values map[string]any) domain.Mutation {
	switch kind {
	case domain.KindSettings:
		for k, v := range values {
			return domain.SettingsUpdate{Key: k, Value: v}
		}
	case domain.KindStatistics:
		return domain.StatisticsUpdate{Statistics: domain.Statistics{
			Average:    values["average"].(int64),
			AverageOf5: values["averageOf5"].(int64),
		}}
	case domain.KindTimes:
		return domain.TimeEntry{Time: values["time"].(int64)}
	}
	return nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		if err == io.EOF {
			return nil, errors.New("empty body")
		}
		return nil, errors.New("malformed JSON object")
	}
	if fields == nil {
		return nil, errors.New("body must be a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

func check(t FieldType, raw any) (any, string) {
	switch t {
	case HexColor:
		s, ok := raw.(string)
		if !ok {
			return nil, "must be a string"
		}
		if !hexColor.MatchString(s) {
			return nil, "must be a #RGB or #RRGGBB hex color"
		}
		return s, ""
	case NonNegativeInt:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, "must be a number"
		}
		i, ok := toInt(n)
		if !ok {
			return nil, "must be an integer"
		}
		if i < 0 {
			return nil, "must be >= 0"
		}
		return i, ""
	}
	return nil, "no rule for field type"
}

// toInt aceita números inteiros em qualquer grafia JSON (12, 12.0, 1e3).
func toInt(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || math.Trunc(f) != f || math.Abs(f) > maxSafeInt {
		return 0, false
	}
	return int64(f), true
}

func invalid(kind domain.EndpointKind, field, reason string) error {
	return &domain.ValidationError{Kind: kind, Field: field, Reason: reason}
}
