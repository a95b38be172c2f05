// Package txlog journals every terminal transaction resolution to SQLite so
// a run can be audited after the fact. The pure-Go driver keeps the binary
// free of cgo.
package txlog

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/glebarez/go-sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sends (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	account  TEXT    NOT NULL,
	nonce    INTEGER NOT NULL,
	kind     TEXT    NOT NULL,
	tx_hash  TEXT    NOT NULL,
	attempts INTEGER NOT NULL,
	err      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS sends_account_ts ON sends(account, ts);
`

// Entry is one journaled send.
type Entry struct {
	ID       int64
	At       time.Time
	Account  string
	Nonce    uint64
	Kind     string
	TxHash   string
	Attempts int
	Err      string
}

// Store satisfies the execution queue's journal interface.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open txlog %s: %w", path, err)
	}
	// The sqlite file is single-writer; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init txlog schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSend journals one terminal resolution. The queue calls this on its
// drain goroutine, so failures are logged rather than propagated back into
// the send path.
func (s *Store) RecordSend(account common.Address, nonce uint64, kind string, hash common.Hash, attempts int, sendErr error) {
	if s == nil || s.db == nil {
		return
	}
	errText := ""
	if sendErr != nil {
		errText = sendErr.Error()
	}
	hashText := ""
	if hash != (common.Hash{}) {
		hashText = hash.Hex()
	}
	_, err := s.db.Exec(
		`INSERT INTO sends (ts, account, nonce, kind, tx_hash, attempts, err) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), account.Hex(), nonce, kind, hashText, attempts, errText,
	)
	if err != nil {
		log.Printf("[warn] txlog insert: %v", err)
	}
}

// Recent returns the latest n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT id, ts, account, nonce, kind, tx_hash, attempts, err FROM sends ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query txlog: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Account, &e.Nonce, &e.Kind, &e.TxHash, &e.Attempts, &e.Err); err != nil {
			return nil, fmt.Errorf("scan txlog row: %w", err)
		}
		e.At = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
