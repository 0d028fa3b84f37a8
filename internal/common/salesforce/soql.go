package salesforce

import (
	"fmt"
	"net/url"
	"strings"
)

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeLiteral escapes s for use inside a single-quoted SOQL string literal.
func EscapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// EscapeLike escapes s for a LIKE pattern so that % and _ match literally.
func EscapeLike(s string) string {
	escaped := EscapeLiteral(s)
	escaped = strings.ReplaceAll(escaped, "%", `\%`)
	return strings.ReplaceAll(escaped, "_", `\_`)
}

// UserByUsernameQuery selects the lowest Id among Users matching username.
func UserByUsernameQuery(username string) string {
	return fmt.Sprintf("SELECT Id FROM User WHERE Username LIKE '%s' ORDER BY Id ASC LIMIT 1", EscapeLike(username))
}

// NonCurrentSessionsQuery lists the user's sessions except the caller's own.
func NonCurrentSessionsQuery(userID string) string {
	return fmt.Sprintf("SELECT Id,UsersId FROM AuthSession WHERE UsersId='%s' AND IsCurrent=false ORDER BY Id ASC", EscapeLiteral(userID))
}

// encodeQuery percent-encodes a SOQL statement as the q parameter. Spaces are
// sent as %20 rather than +.
func encodeQuery(soql string) string {
	return strings.ReplaceAll(url.Values{"q": {soql}}.Encode(), "+", "%20")
}
