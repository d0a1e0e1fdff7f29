package httpapi

import (
	"fmt"
	"strings"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
)

// ParseSort turns "field,-other" into orders. allowed maps API field names to columns; unknown fields
// yield a validation error on "sort".
func ParseSort(raw string, allowed map[string]string) ([]crud.Order, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var orders []crud.Order
	fields := crud.FieldErrors{}
	for _, part := range strings.Split(raw, ",") {
		field := strings.TrimSpace(part)
		if field == "" {
			continue
		}
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")

		column, ok := allowed[field]
		if !ok {
			fields.Add("sort", fmt.Sprintf("unsupported sort field %q", field))
			continue
		}
		if desc {
			orders = append(orders, crud.Desc(column))
		} else {
			orders = append(orders, crud.Asc(column))
		}
	}

	if len(fields) > 0 {
		return nil, &crud.ValidationError{Fields: fields}
	}
	return orders, nil
}
