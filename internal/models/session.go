package models

// AuthSession is a Salesforce AuthSession record. Only non-current sessions are
// ever listed for revocation.
type AuthSession struct {
	Attributes RecordAttributes `json:"attributes"`
	ID         string           `json:"Id"`
	UsersID    string           `json:"UsersId"`
	IsCurrent  bool             `json:"IsCurrent,omitempty"`
}

// SessionIDs returns the identifiers in listed order.
func SessionIDs(sessions []AuthSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
