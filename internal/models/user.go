package models

// RecordAttributes is the "attributes" envelope Salesforce attaches to every record.
type RecordAttributes struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// User is the projection of a Salesforce User returned by the username lookup.
type User struct {
	Attributes RecordAttributes `json:"attributes"`
	ID         string           `json:"Id"`
	Username   string           `json:"Username,omitempty"`
}
