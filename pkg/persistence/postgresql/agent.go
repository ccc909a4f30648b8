package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
)

const agentColumns = `
	id
  , name
  , description
  , subdomain
  , category
  , tags
  , data_input
  , example_input
  , example_output
  , status
`

// AgentRepository reads and writes the marketplace agent catalog.
type AgentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAgentRepository creates a new agent repository.
func NewAgentRepository(db *sql.DB, logger *slog.Logger) *AgentRepository {
	return &AgentRepository{db: db, logger: logger}
}

func scanAgent(row rowScanner) (*models.AgentMetadata, error) {
	agent := &models.AgentMetadata{}

	var (
		description   sql.NullString
		category      sql.NullString
		tags          []byte
		dataInput     sql.NullString
		exampleInput  sql.NullString
		exampleOutput sql.NullString
	)

	err := row.Scan(
		&agent.ID,
		&agent.Name,
		&description,
		&agent.Subdomain,
		&category,
		&tags,
		&dataInput,
		&exampleInput,
		&exampleOutput,
		&agent.Status,
	)
	if err != nil {
		return nil, err
	}

	agent.Description = description.String
	agent.Category = category.String
	agent.DataInput = dataInput.String
	agent.ExampleInput = exampleInput.String
	agent.ExampleOutput = exampleOutput.String

	if len(tags) > 0 {
		err = json.Unmarshal(tags, &agent.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent tags: %w", err)
		}
	}

	return agent, nil
}

// ActiveAgents returns the currently dispatchable agents.
func (r *AgentRepository) ActiveAgents(ctx context.Context) ([]*models.AgentMetadata, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE status = $1 ORDER BY id",
		models.AgentStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active agents: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	agents := make([]*models.AgentMetadata, 0)

	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}

		agents = append(agents, agent)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}

// AgentByID returns one agent by catalog id.
func (r *AgentRepository) AgentByID(ctx context.Context, id string) (*models.AgentMetadata, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = $1", id)

	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("AgentByID", id, persistence.ErrAgentNotFound)
		}

		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	return agent, nil
}

// SaveAgent upserts one catalog entry.
func (r *AgentRepository) SaveAgent(ctx context.Context, agent *models.AgentMetadata) error {
	tagsJSON, err := json.Marshal(agent.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal agent tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, subdomain, category, tags, data_input, example_input, example_output, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			subdomain = EXCLUDED.subdomain,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			data_input = EXCLUDED.data_input,
			example_input = EXCLUDED.example_input,
			example_output = EXCLUDED.example_output,
			status = EXCLUDED.status
	`, agent.ID, agent.Name, agent.Description, agent.Subdomain, agent.Category, tagsJSON,
		agent.DataInput, agent.ExampleInput, agent.ExampleOutput, agent.Status)
	if err != nil {
		return persistence.NewStoreError("SaveAgent", agent.ID, err)
	}

	return nil
}
