package database

// schemaDDL is the base schema for the trader database. Every table uses
// IF NOT EXISTS so the statement block is idempotent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS trades (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker              TEXT NOT NULL,
    strategy            TEXT NOT NULL,
    direction           TEXT NOT NULL DEFAULT 'short',
    sector              TEXT NOT NULL DEFAULT 'Unknown',
    strike              REAL NOT NULL,
    strike_sell         REAL,
    strike_buy          REAL,
    spread_width        REAL,
    expiry              TEXT NOT NULL,
    dte                 INTEGER NOT NULL,
    contracts           INTEGER NOT NULL DEFAULT 1,
    entry_price         REAL NOT NULL,
    entry_date          TEXT NOT NULL,
    entry_spot          REAL,
    entry_iv            REAL,
    entry_delta         REAL,
    exit_price          REAL,
    exit_date           TEXT,
    exit_spot           REAL,
    exit_reason         TEXT,
    pnl_dollars         REAL,
    pnl_percent         REAL,
    max_profit          REAL,
    max_loss            REAL,
    market_scan_id      INTEGER,
    ai_rationale        TEXT,
    ai_confidence       REAL,
    model_used          TEXT,
    stop_loss_price     REAL NOT NULL,
    profit_target_price REAL NOT NULL,
    status              TEXT NOT NULL DEFAULT 'open',
    created_at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);
CREATE INDEX IF NOT EXISTS idx_trades_exit_date ON trades(exit_date);

CREATE TABLE IF NOT EXISTS market_scans (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_date        TEXT NOT NULL UNIQUE,
    market_mood      TEXT NOT NULL DEFAULT 'neutral',
    trending_tickers TEXT NOT NULL DEFAULT '[]',
    sector_momentum  TEXT NOT NULL DEFAULT '{}',
    caution_flags    TEXT NOT NULL DEFAULT '[]',
    raw_response     TEXT NOT NULL DEFAULT '',
    vix              REAL,
    spy_price        REAL,
    spy_change_pct   REAL,
    candidate_pool   TEXT NOT NULL DEFAULT '[]',
    selected_picks   TEXT NOT NULL DEFAULT '[]',
    scan_model       TEXT NOT NULL DEFAULT '',
    analysis_model   TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_reviews (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id      INTEGER NOT NULL REFERENCES trades(id),
    raw_review    TEXT NOT NULL DEFAULT '',
    lesson        TEXT NOT NULL DEFAULT '',
    what_worked   TEXT NOT NULL DEFAULT '',
    what_failed   TEXT NOT NULL DEFAULT '',
    should_repeat INTEGER NOT NULL DEFAULT 0,
    model_used    TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_reviews_trade ON trade_reviews(trade_id);

CREATE TABLE IF NOT EXISTS daily_summaries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    summary_date    TEXT NOT NULL UNIQUE,
    trades_opened   INTEGER NOT NULL DEFAULT 0,
    trades_closed   INTEGER NOT NULL DEFAULT 0,
    wins            INTEGER NOT NULL DEFAULT 0,
    losses          INTEGER NOT NULL DEFAULT 0,
    total_pnl       REAL NOT NULL DEFAULT 0,
    account_value   REAL NOT NULL DEFAULT 0,
    capital_at_risk REAL NOT NULL DEFAULT 0,
    reflection      TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS learned_rules (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_text        TEXT NOT NULL,
    category         TEXT NOT NULL DEFAULT 'general',
    source_trade_ids TEXT NOT NULL DEFAULT '[]',
    confidence       REAL NOT NULL DEFAULT 0.5,
    times_applied    INTEGER NOT NULL DEFAULT 0,
    times_helpful    INTEGER NOT NULL DEFAULT 0,
    active           INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    description TEXT,
    updated_at  INTEGER NOT NULL
);
`

// additiveMigrations contains column additions applied after the base
// schema. Columns are never renamed or repurposed; each statement is
// tolerated failing with "duplicate column" on databases that already
// carry it.
var additiveMigrations = []string{
	`ALTER TABLE market_scans ADD COLUMN citations TEXT NOT NULL DEFAULT '[]';`,
}
