package catalog

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"storefront/internal/domain"
)

// encodeCursor binds an offset to the sort that produced it.
func encodeCursor(key domain.SortKey, reverse bool, offset int) string {
	raw := fmt.Sprintf("%s:%t:%d", key, reverse, offset)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string, key domain.SortKey, reverse bool) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	invalid := domain.NewValidationError("cursor", "invalid cursor")
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, invalid
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] != string(key) || parts[1] != strconv.FormatBool(reverse) {
		return 0, invalid
	}
	offset, err := strconv.Atoi(parts[2])
	if err != nil || offset < 0 {
		return 0, invalid
	}
	return offset, nil
}
