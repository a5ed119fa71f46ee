package db

const boardSchema = `
-- Tasks table
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT 'New Task',
    description TEXT NOT NULL DEFAULT '',
    column_id TEXT NOT NULL CHECK(column_id IN ('todo', 'inprogress', 'done')),
    position REAL NOT NULL CHECK(position > 0),
    version INTEGER NOT NULL DEFAULT 1,
    title_version INTEGER NOT NULL DEFAULT 1,
    description_version INTEGER NOT NULL DEFAULT 1,
    column_version INTEGER NOT NULL DEFAULT 1,
    position_version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_column_position ON tasks(column_id, position);
`
