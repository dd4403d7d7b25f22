package extraction

import "strings"

// Strategy is one way of pulling text out of a document. Strategies are
// tried in order until one yields output that passes the quality gate;
// a failing strategy is recorded and skipped, never raised.
type Strategy interface {
	Name() string
	Extract(data []byte) (string, error)
}

// decodePlainText converts raw bytes into usable text: NULs stripped,
// invalid UTF-8 replaced, surrounding whitespace trimmed. Plain text
// uploads skip the quality gate entirely.
func decodePlainText(data []byte) string {
	s := strings.ToValidUTF8(string(data), "�")
	return strings.TrimSpace(stripNuls(s))
}
