package ledger

import "strings" // String manipulation

// Normalize canonicalizes a display name into a lookup key: spaces and
// "@" stripped, lowercased. Aliases that collapse to the same key share
// one account on purpose. Every mapping access goes through this; raw
// display names are never used as keys.
func Normalize(name string) string {
	name = strings.ReplaceAll(name, " ", "") // Strip spaces
	name = strings.ReplaceAll(name, "@", "") // Strip @
	return strings.ToLower(name)             // Lowercase
}
