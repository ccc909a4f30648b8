package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				user_message TEXT NOT NULL,
				requester_address VARCHAR(255) NOT NULL,
				plan JSONB NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_step INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_requester ON workflows(requester_address);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE step_results (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				step_number INT NOT NULL,
				agent_id VARCHAR(255) NOT NULL,
				agent_name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				job_id VARCHAR(255),
				unsigned_group_txns JSONB,
				txn_ids JSONB,
				access_token TEXT,
				output TEXT,
				failure_reason TEXT,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, step_number)
			);

			CREATE INDEX idx_step_results_workflow ON step_results(workflow_id);
			CREATE INDEX idx_step_results_status ON step_results(status);

			CREATE TABLE agents (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				subdomain VARCHAR(255) NOT NULL,
				category VARCHAR(255),
				tags JSONB,
				data_input TEXT,
				example_input TEXT,
				example_output TEXT,
				status VARCHAR(50) NOT NULL DEFAULT 'active'
			);

			CREATE INDEX idx_agents_status ON agents(status);
		`,
	}
}
