// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	user_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	target TEXT NOT NULL,
	accepted INTEGER NOT NULL,
	status TEXT NOT NULL,
	http_status INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_time ON executions(time);
CREATE INDEX IF NOT EXISTS idx_executions_account ON executions(account_id, time);
`
