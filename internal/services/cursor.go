package services

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// History cursors encode the (created_at, seq) position of the last message
// of a page. They are opaque to clients and restartable: an empty cursor
// starts from the beginning of the conversation.

func encodeCursor(at time.Time, seq int64) string {
	raw := fmt.Sprintf("%d:%d", at.UnixMicro(), seq)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, int64, error) {
	if cursor == "" {
		return time.Time{}, 0, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: bad cursor", ErrInvalidInput)
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("%w: bad cursor", ErrInvalidInput)
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: bad cursor", ErrInvalidInput)
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: bad cursor", ErrInvalidInput)
	}

	return time.UnixMicro(micros).UTC(), seq, nil
}
