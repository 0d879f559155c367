package importer

import (
	"fmt"
	"slices"
	"strings"
)

// Field is a logical transaction field a file column can be mapped to.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldType        Field = "type"
	FieldCategory    Field = "category"
	FieldComments    Field = "comments"
)

// Fields returns every field in form order.
func Fields() []Field {
	return []Field{FieldDate, FieldDescription, FieldAmount, FieldType, FieldCategory, FieldComments}
}

// RequiredFields returns the fields that must be mapped before importing.
func RequiredFields() []Field {
	return []Field{FieldDate, FieldDescription, FieldAmount, FieldType, FieldCategory}
}

func (f Field) Required() bool {
	return f != FieldComments && slices.Contains(Fields(), f)
}

func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Fields(), f) {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// Mapping assigns a header label to each logical field.
type Mapping map[Field]string

func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Missing returns the required fields without a header, in form order.
func (m Mapping) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields() {
		if strings.TrimSpace(m[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Labels a header may carry for each field, compared case-insensitively.
var fieldLabels = map[Field][]string{
	FieldDate:        {"fecha", "date", "dia", "día"},
	FieldDescription: {"descripción", "descripcion", "description", "concepto", "detalle"},
	FieldAmount:      {"monto", "amount", "importe", "valor", "cantidad"},
	FieldType:        {"tipo", "type", "kind"},
	FieldCategory:    {"categoría", "categoria", "category"},
	FieldComments:    {"comentarios", "comments", "comentario", "notas", "notes"},
}

// SuggestMapping pre-fills fields whose label matches a header. A file
// produced by the export maps every field onto its own column.
func SuggestMapping(headers []string) Mapping {
	m := make(Mapping)
	for _, f := range Fields() {
		for _, h := range headers {
			if slices.Contains(fieldLabels[f], strings.ToLower(strings.TrimSpace(h))) {
				m[f] = h
				break
			}
		}
	}
	return m
}
