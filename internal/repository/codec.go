package repository

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/stemsi/exprep-backend/internal/model"
)

// decodeField decodes one stored collection. A value that fails to decode
// is recorded in corrupted and replaced with the zero value.
func decodeField[T any](corrupted *[]string, field string, raw []byte) T {
	var v T
	if err := model.DecodeCollection(raw, &v); err != nil {
		*corrupted = append(*corrupted, field)
		var zero T
		return zero
	}
	return v
}

func encodeField(field string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", field, err)
	}
	return raw, nil
}

// encodeMutable encodes a collection for an UPDATE. A field that failed to
// decode on read encodes as NULL so the statement keeps the stored value.
func encodeMutable(corrupted []string, field string, v any) ([]byte, error) {
	if slices.Contains(corrupted, field) {
		return nil, nil
	}
	return encodeField(field, v)
}

// qualify prefixes every column in a comma separated list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
