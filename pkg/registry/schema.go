// pkg/registry/schema.go
package registry

// Implementation states an activity moves through.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
)

var knownStatuses = map[string]bool{
	StatusPlanned:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusVerified:   true,
}

// ActivityRegistry is the JSON document listing every job type the fleet
// serves.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one Zeebe task type. Inputs and Outputs map a process
// variable name to its JSON type ("string", "number", "string|number").
type Activity struct {
	ID                   string            `json:"id"`
	DisplayName          string            `json:"displayName"`
	Description          string            `json:"description,omitempty"`
	Category             string            `json:"category"`
	Version              string            `json:"version"`
	TaskType             string            `json:"taskType"`
	ImplementationStatus string            `json:"implementationStatus"`
	Inputs               map[string]string `json:"inputSchema,omitempty"`
	Outputs              map[string]string `json:"outputSchema,omitempty"`
	ErrorCodes           []string          `json:"errorCodes,omitempty"`
	Timeout              string            `json:"timeout,omitempty"` // "45s" or milliseconds
	Retries              int               `json:"retries"`
	Workflows            []string          `json:"workflows,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
}
