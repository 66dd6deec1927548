package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// APIKeyPrefix marks fundme API keys.
const APIKeyPrefix = "fm_key_"

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s%s", APIKeyPrefix, hex.EncodeToString(b))
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// normalizeAccount stores addresses lowercase so lookups are case-insensitive.
func normalizeAccount(account string) string {
	return strings.ToLower(account)
}

// parseCursor decodes an event cursor, which is the sequence number of the
// last event on the previous page.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

// eventQuery builds the filtered, newest-first event listing. placeholder
// renders the n-th (1-based) bind parameter for the dialect.
func eventQuery(filter EventFilter, pagination PaginationParams, placeholder func(n int) string) (string, []any, error) {
	seq, err := parseCursor(pagination.Cursor)
	if err != nil {
		return "", nil, err
	}

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if filter.Kind != "" {
		add("kind = %s", filter.Kind)
	}
	if filter.Account != "" {
		add("account = %s", normalizeAccount(filter.Account))
	}
	if seq > 0 {
		add("seq < %s", seq)
	}

	query := `SELECT seq, id, kind, account, amount, usd_value, funder_count, created_at FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, pagination.Limit+1)
	query += " ORDER BY seq DESC LIMIT " + placeholder(len(args))
	return query, args, nil
}

// pageEvents trims the extra probe row and computes the next cursor.
func pageEvents(events []Event, limit int) *PaginatedResult[Event] {
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	result := &PaginatedResult[Event]{Data: events, HasMore: hasMore}
	if hasMore && len(events) > 0 {
		result.NextCursor = strconv.FormatInt(events[len(events)-1].Seq, 10)
	}
	return result
}
