package database

import (
	"context"
	"fmt"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"research_jobs", `CREATE TABLE IF NOT EXISTS research_jobs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		topic TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		report TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`},
	{"research_jobs.answers", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS answers JSONB`},
	{"research_jobs.breadth", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS breadth INTEGER NOT NULL DEFAULT 0`},
	{"research_jobs.depth", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS depth INTEGER NOT NULL DEFAULT 0`},
	{"research_jobs.strategy", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS strategy TEXT NOT NULL DEFAULT 'plan'`},
	{"research_jobs.plan", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS plan JSONB`},
	{"research_jobs.progress", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS progress INTEGER NOT NULL DEFAULT 0`},
	{"research_jobs.step", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS step TEXT NOT NULL DEFAULT ''`},
	{"research_jobs.learnings", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS learnings JSONB`},
	{"research_jobs.visited_urls", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS visited_urls JSONB`},
	{"research_jobs.title", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS title TEXT NOT NULL DEFAULT ''`},
	{"research_jobs.summary", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS summary TEXT NOT NULL DEFAULT ''`},
	{"research_jobs.error", `ALTER TABLE research_jobs ADD COLUMN IF NOT EXISTS error TEXT`},
	{"idx_research_jobs_created_at", `CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC)`},

	{"research_logs", `CREATE TABLE IF NOT EXISTS research_logs (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
		timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata JSONB
	)`},
	{"idx_research_logs_job_id", `CREATE INDEX IF NOT EXISTS idx_research_logs_job_id ON research_logs(job_id)`},

	{"conversations", `CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title TEXT NOT NULL DEFAULT 'New Conversation',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`},
	{"idx_conversations_updated_at", `CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`},
	{"messages", `CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`},
	{"idx_messages_conversation_id", `CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`},
}

// InitSchema creates or upgrades the job, log and chat tables.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	for _, s := range schema {
		if _, err := db.Pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("failed to apply schema %s: %w", s.name, err)
		}
	}
	return nil
}
