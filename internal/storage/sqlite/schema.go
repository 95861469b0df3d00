package sqlite

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS sync_config (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    email TEXT NOT NULL,
    api_token TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 0,
    company_id INTEGER NOT NULL DEFAULT 1,
    last_sync_at DATETIME
);

-- At most one active configuration per company.
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_config_active
    ON sync_config(company_id) WHERE active = 1;

CREATE TABLE IF NOT EXISTS teams (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sequence INTEGER NOT NULL DEFAULT 10
);

CREATE TABLE IF NOT EXISTS stages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sequence INTEGER NOT NULL DEFAULT 10,
    team_id INTEGER REFERENCES teams(id)
);

CREATE INDEX IF NOT EXISTS idx_stages_name ON stages(name);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    jira_key TEXT,
    jira_id TEXT NOT NULL DEFAULT '',
    is_jira_project INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_jira_key
    ON projects(jira_key) WHERE jira_key IS NOT NULL AND jira_key != '';

CREATE TABLE IF NOT EXISTS tickets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    stage_id INTEGER NOT NULL REFERENCES stages(id),
    user_id INTEGER REFERENCES users(id),
    jira_key TEXT,
    jira_id TEXT NOT NULL DEFAULT '',
    jira_status TEXT NOT NULL DEFAULT '',
    jira_priority TEXT NOT NULL DEFAULT '',
    jira_created_at DATETIME,
    is_jira_ticket INTEGER NOT NULL DEFAULT 0,
    jira_comments TEXT NOT NULL DEFAULT '',
    new_jira_comment TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_jira_key
    ON tickets(jira_key) WHERE jira_key IS NOT NULL AND jira_key != '';

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    content BLOB,
    mime_type TEXT NOT NULL DEFAULT '',
    res_type TEXT NOT NULL,
    res_id INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_owner
    ON attachments(res_type, res_id);
`
