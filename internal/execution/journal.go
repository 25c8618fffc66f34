package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"tradesim/internal/ledger"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists every fill to SQLite for analysis and audit. It is an
// append-only record and plays no part in ledger state; the snapshot
// store owns recovery.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite trade journal.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		mode        TEXT NOT NULL,
		side        TEXT NOT NULL,
		product     TEXT NOT NULL,
		token       TEXT NOT NULL,
		exchange    TEXT NOT NULL,
		symbol      TEXT,
		qty         INTEGER NOT NULL,
		price       INTEGER NOT NULL,
		value       INTEGER NOT NULL,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_mode ON trades(mode);
	CREATE INDEX IF NOT EXISTS idx_trades_token ON trades(token, exchange);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill ledger.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, mode, side, product, token, exchange, symbol, qty, price, value, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Mode,
		fill.Side,
		fill.Product,
		fill.Token,
		fill.Exchange,
		fill.TradingSymbol,
		fill.Qty,
		fill.Price,
		fill.Value(),
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID       int64  `json:"id"`
	OrderID  string `json:"order_id"`
	Mode     string `json:"mode"`
	Side     string `json:"side"`
	Product  string `json:"product"`
	Token    string `json:"token"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Qty      int64  `json:"qty"`
	Price    int64  `json:"price"`
	Value    int64  `json:"value"`
	FilledAt string `json:"filled_at"`
}

// GetTrades returns the last N trades for a mode, newest first.
func (j *Journal) GetTrades(mode string, limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, mode, side, product, token, exchange, symbol, qty, price, value, filled_at
		 FROM trades WHERE mode = ? ORDER BY id DESC LIMIT ?`, mode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Mode, &t.Side, &t.Product, &t.Token,
			&t.Exchange, &t.Symbol, &t.Qty, &t.Price, &t.Value, &t.FilledAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
