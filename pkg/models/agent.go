package models

// AgentStatus represents the marketplace listing state of an agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// AgentMetadata describes one remote agent service as listed in the
// marketplace catalog. Subdomain addresses the agent's service endpoint;
// the declared input contract fields feed the planner prompt.
type AgentMetadata struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"          validate:"required"`
	Description   string      `json:"description"`
	Subdomain     string      `json:"subdomain"     validate:"required"`
	Category      string      `json:"category"`
	Tags          []string    `json:"tags"`
	DataInput     string      `json:"data_input"`
	ExampleInput  string      `json:"example_input"`
	ExampleOutput string      `json:"example_output"`
	Status        AgentStatus `json:"status"`
}

// Active reports whether the agent is currently dispatchable.
func (a *AgentMetadata) Active() bool {
	return a.Status == AgentStatusActive
}
