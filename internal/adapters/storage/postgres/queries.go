package postgres

const querySchema = `
CREATE TABLE IF NOT EXISTS quota_counters (
	identity     TEXT        NOT NULL,
	window_kind  TEXT        NOT NULL,
	count        BIGINT      NOT NULL DEFAULT 0,
	window_start TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (identity, window_kind)
);
CREATE INDEX IF NOT EXISTS quota_counters_expires_at_idx ON quota_counters (expires_at);
`

// queryLockCounter cria a linha (já expirada) se faltar e a devolve travada.
// O DO UPDATE no-op mantém o lock da linha até o fim da transação, inclusive
// quando um Reset concorrente apagou a linha entre duas chamadas.
const queryLockCounter = `
INSERT INTO quota_counters (identity, window_kind, count, window_start, expires_at)
VALUES ($1, $2, 0, $3, $3)
ON CONFLICT (identity, window_kind) DO UPDATE SET count = quota_counters.count
RETURNING count, window_start, expires_at
`

const querySelectCounter = `
SELECT count, window_start, expires_at
FROM quota_counters
WHERE identity = $1 AND window_kind = $2
`

const queryIncrementCounter = `
UPDATE quota_counters
SET count = count + 1
WHERE identity = $1 AND window_kind = $2
`

const queryRestartCounter = `
UPDATE quota_counters
SET count = 1, window_start = $3, expires_at = $4
WHERE identity = $1 AND window_kind = $2
`

const queryDeleteIdentity = `
DELETE FROM quota_counters WHERE identity = $1
`

const queryDeleteAll = `
DELETE FROM quota_counters
`

const queryDeleteExpired = `
DELETE FROM quota_counters WHERE expires_at <= $1
`
