package core

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MicroRLTPerRLT is the fixed-point scale between µRLT and RLT.
const MicroRLTPerRLT = 1_000_000

// HistoryType enumerates wallet ledger entry kinds (spec §3).
type HistoryType string

const (
	HistoryReward  HistoryType = "reward"
	HistorySpend   HistoryType = "spend"
	HistoryUnknown HistoryType = "unknown"
)

const walletSchema = `
CREATE TABLE IF NOT EXISTS wallets (
	public_key   BLOB PRIMARY KEY,
	balance_urlt INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS wallet_history (
	public_key     BLOB NOT NULL,
	transaction_id BLOB NOT NULL,
	amount         INTEGER NOT NULL,
	type           TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	description    TEXT NOT NULL,
	PRIMARY KEY (public_key, transaction_id)
);
`

// HistoryEntry is one row of a wallet's append-only transaction history.
type HistoryEntry struct {
	PublicKey     [32]byte
	TransactionID TxID
	Amount        int64
	Type          HistoryType
	CreatedAt     time.Time
	Description   string
}

// WalletSummary is the compact view returned by WalletLedger.Summary.
type WalletSummary struct {
	BalanceMicroRLT uint64
	BalanceRLT      float64
	RecentHistory   []HistoryEntry
}

// WalletStatistics aggregates totals across all wallets.
type WalletStatistics struct {
	WalletCount       int
	TotalBalanceMicro uint64
	TotalHistoryRows  int
}

// WalletLedger is the durable balance and history store of spec §4.4. Every
// mutation is atomic: a balance delta and its history row are written in
// the same SQLite transaction, so no history entry ever exists without a
// matching balance change and vice versa.
type WalletLedger struct {
	db              *sql.DB
	startingBalance uint64
}

// OpenWalletLedger opens (creating if absent) a SQLite-backed wallet store.
// startingBalance is the µRLT balance granted to a wallet on first-touch
// creation; production deployments should pass 0 (see spec §9 open
// questions) and reserve a nonzero value for development profiles.
func OpenWalletLedger(path string, startingBalance uint64) (*WalletLedger, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, dbErr("open wallet ledger", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(walletSchema); err != nil {
		db.Close()
		return nil, dbErr("migrate wallet ledger", err)
	}
	return &WalletLedger{db: db, startingBalance: startingBalance}, nil
}

// Close releases the underlying database handle.
func (w *WalletLedger) Close() error { return w.db.Close() }

// Create ensures a wallet row exists for pub, granting the configured
// starting balance on first touch. It is a no-op, not an error, if the
// wallet already exists — concurrent first-touch creation is race-safe by
// virtue of INSERT OR IGNORE.
func (w *WalletLedger) Create(pub [32]byte) error {
	now := time.Now().UnixNano()
	_, err := w.db.Exec(`INSERT OR IGNORE INTO wallets (public_key, balance_urlt, created_at, last_updated)
		VALUES (?, ?, ?, ?)`, pub[:], int64(w.startingBalance), now, now)
	if err != nil {
		return dbErr("wallet create", err)
	}
	return nil
}

// Balance lazily creates the wallet if absent and returns its current
// balance in µRLT.
func (w *WalletLedger) Balance(pub [32]byte) (uint64, error) {
	if err := w.Create(pub); err != nil {
		return 0, err
	}
	var bal int64
	err := w.db.QueryRow(`SELECT balance_urlt FROM wallets WHERE public_key = ?`, pub[:]).Scan(&bal)
	if err != nil {
		return 0, dbErr("wallet balance", err)
	}
	return uint64(bal), nil
}

// AwardReward atomically credits amount µRLT to pub and records a reward
// history row keyed by (pub, txID). A duplicate (pub, txID) pair is
// rejected silently by the composite primary key, making retries
// idempotent: the balance is credited at most once per (pub, txID).
func (w *WalletLedger) AwardReward(pub [32]byte, amount uint64, txID TxID) error {
	if err := w.Create(pub); err != nil {
		return err
	}
	dbtx, err := w.db.Begin()
	if err != nil {
		return dbErr("award: begin", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.Exec(`INSERT OR IGNORE INTO wallet_history (public_key, transaction_id, amount, type, created_at, description)
		VALUES (?, ?, ?, ?, ?, ?)`, pub[:], txID[:], int64(amount), string(HistoryReward), time.Now().UnixNano(), "relay reward")
	if err != nil {
		return dbErr("award: insert history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("award: rows affected", err)
	}
	if n == 0 {
		// Already recorded for this (pub, txID); idempotent no-op.
		return dbtx.Commit()
	}
	if _, err := dbtx.Exec(`UPDATE wallets SET balance_urlt = balance_urlt + ?, last_updated = ? WHERE public_key = ?`,
		int64(amount), time.Now().UnixNano(), pub[:]); err != nil {
		return dbErr("award: credit balance", err)
	}
	return dbtx.Commit()
}

// Spend atomically debits amount µRLT from pub and records a spend history
// row keyed by (pub, txID), failing with ErrInsufficientBalance if the
// wallet's balance is below amount.
func (w *WalletLedger) Spend(pub [32]byte, amount uint64, txID TxID, description string) error {
	if err := w.Create(pub); err != nil {
		return err
	}
	dbtx, err := w.db.Begin()
	if err != nil {
		return dbErr("spend: begin", err)
	}
	defer dbtx.Rollback()

	var bal int64
	if err := dbtx.QueryRow(`SELECT balance_urlt FROM wallets WHERE public_key = ?`, pub[:]).Scan(&bal); err != nil {
		return dbErr("spend: read balance", err)
	}
	if uint64(bal) < amount {
		return ErrInsufficientBalance
	}

	res, err := dbtx.Exec(`INSERT OR IGNORE INTO wallet_history (public_key, transaction_id, amount, type, created_at, description)
		VALUES (?, ?, ?, ?, ?, ?)`, pub[:], txID[:], -int64(amount), string(HistorySpend), time.Now().UnixNano(), description)
	if err != nil {
		return dbErr("spend: insert history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("spend: rows affected", err)
	}
	if n == 0 {
		return dbtx.Commit()
	}
	if _, err := dbtx.Exec(`UPDATE wallets SET balance_urlt = balance_urlt - ?, last_updated = ? WHERE public_key = ?`,
		int64(amount), time.Now().UnixNano(), pub[:]); err != nil {
		return dbErr("spend: debit balance", err)
	}
	return dbtx.Commit()
}

// History returns up to limit entries for pub, newest first.
func (w *WalletLedger) History(pub [32]byte, limit int) ([]HistoryEntry, error) {
	rows, err := w.db.Query(`SELECT transaction_id, amount, type, created_at, description
		FROM wallet_history WHERE public_key = ? ORDER BY created_at DESC LIMIT ?`, pub[:], limit)
	if err != nil {
		return nil, dbErr("history", err)
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var txIDRaw []byte
		var amount int64
		var typ, desc string
		var createdAtNanos int64
		if err := rows.Scan(&txIDRaw, &amount, &typ, &createdAtNanos, &desc); err != nil {
			return nil, dbErr("history: scan", err)
		}
		var e HistoryEntry
		e.PublicKey = pub
		copy(e.TransactionID[:], txIDRaw)
		e.Amount = amount
		e.Type = normalizeHistoryType(typ)
		e.CreatedAt = time.Unix(0, createdAtNanos)
		e.Description = desc
		out = append(out, e)
	}
	return out, rows.Err()
}

func normalizeHistoryType(s string) HistoryType {
	switch HistoryType(s) {
	case HistoryReward:
		return HistoryReward
	case HistorySpend:
		return HistorySpend
	default:
		return HistoryUnknown
	}
}

// Summary returns the compact balance/history view for pub.
func (w *WalletLedger) Summary(pub [32]byte) (WalletSummary, error) {
	bal, err := w.Balance(pub)
	if err != nil {
		return WalletSummary{}, err
	}
	hist, err := w.History(pub, 20)
	if err != nil {
		return WalletSummary{}, err
	}
	return WalletSummary{
		BalanceMicroRLT: bal,
		BalanceRLT:      float64(bal) / MicroRLTPerRLT,
		RecentHistory:   hist,
	}, nil
}

// Statistics returns totals across all wallets.
func (w *WalletLedger) Statistics() (WalletStatistics, error) {
	var stats WalletStatistics
	if err := w.db.QueryRow(`SELECT COUNT(1), COALESCE(SUM(balance_urlt), 0) FROM wallets`).
		Scan(&stats.WalletCount, &stats.TotalBalanceMicro); err != nil {
		return WalletStatistics{}, dbErr("statistics: wallets", err)
	}
	if err := w.db.QueryRow(`SELECT COUNT(1) FROM wallet_history`).Scan(&stats.TotalHistoryRows); err != nil {
		return WalletStatistics{}, dbErr("statistics: history", err)
	}
	return stats, nil
}
