package store

// Normalize maps a driver-scanned value to the canonical Go type for a
// column kind: string (or nil) for text, bool for booleans. SQLite hands
// text back as []byte and booleans as int64, Postgres already returns the
// canonical types.
func Normalize(kind ColumnKind, v any) any {
	switch kind {
	case ColumnBool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		default:
			return false
		}
	default:
		switch s := v.(type) {
		case []byte:
			return string(s)
		default:
			return v
		}
	}
}
