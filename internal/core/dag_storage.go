package core

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// DefaultMaxTransactions is the retention bound applied by DAGStorage.Add
// when no override is configured (spec §4.2).
const DefaultMaxTransactions = 1000

const dagSchema = `
CREATE TABLE IF NOT EXISTS dag_nodes (
	id          BLOB PRIMARY KEY,
	parent1     BLOB NOT NULL,
	parent2     BLOB NOT NULL,
	fee_per_hop INTEGER NOT NULL,
	sender_pub  BLOB NOT NULL,
	signature   BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	is_tip      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dag_created_at ON dag_nodes(created_at);
CREATE INDEX IF NOT EXISTS idx_dag_is_tip ON dag_nodes(is_tip);
CREATE INDEX IF NOT EXISTS idx_dag_parent1 ON dag_nodes(parent1);
CREATE INDEX IF NOT EXISTS idx_dag_parent2 ON dag_nodes(parent2);
`

// DAGStats summarizes the stored DAG (spec §4.2).
type DAGStats struct {
	Total      int
	TipCount   int
	TotalWeight uint64
}

// DAGStorage is the persistent, crash-safe store of signed relay
// transactions described in spec §4.2. All mutating operations serialize
// through a single writer mutex; readers see a consistent snapshot.
type DAGStorage struct {
	db              *sql.DB
	mu              sync.Mutex
	maxTransactions int
}

// OpenDAGStorage opens (creating if absent) a SQLite-backed DAG store at
// path, runs the schema migration, reconstructs tip flags from structure,
// and idempotently admits the genesis transaction.
func OpenDAGStorage(path string, maxTransactions int) (*DAGStorage, error) {
	if maxTransactions <= 0 {
		maxTransactions = DefaultMaxTransactions
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, dbErr("open dag storage", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(dagSchema); err != nil {
		db.Close()
		return nil, dbErr("migrate dag storage", err)
	}
	s := &DAGStorage{db: db, maxTransactions: maxTransactions}
	if err := s.rebuildTips(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := s.Add(NewGenesisTx()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *DAGStorage) Close() error {
	return s.db.Close()
}

// rebuildTips recomputes is_tip for every stored row from structure: a node
// is a tip iff no other stored node lists it as parent1 or parent2. This
// runs on every open so a storage file with stale flags (crash mid-update,
// manual edits) converges to the authoritative structural rule.
func (s *DAGStorage) rebuildTips() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return dbErr("rebuild tips: begin", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE dag_nodes SET is_tip = 1`); err != nil {
		return dbErr("rebuild tips: reset", err)
	}
	if _, err := tx.Exec(`
		UPDATE dag_nodes SET is_tip = 0
		WHERE id IN (SELECT parent1 FROM dag_nodes UNION SELECT parent2 FROM dag_nodes)
	`); err != nil {
		return dbErr("rebuild tips: clear referenced", err)
	}
	return tx.Commit()
}

// Contains reports whether id is already stored.
func (s *DAGStorage) Contains(id TxID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(id)
}

func (s *DAGStorage) containsLocked(id TxID) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM dag_nodes WHERE id = ?`, id[:]).Scan(&n)
	if err != nil {
		return false, dbErr("contains", err)
	}
	return n > 0, nil
}

// Get returns the stored transaction for id, if any.
func (s *DAGStorage) Get(id TxID) (SignedRelayTx, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *DAGStorage) getLocked(id TxID) (SignedRelayTx, bool, error) {
	row := s.db.QueryRow(`SELECT parent1, parent2, fee_per_hop, sender_pub, signature FROM dag_nodes WHERE id = ?`, id[:])
	var p1, p2, pub, sig []byte
	var fee int64
	if err := row.Scan(&p1, &p2, &fee, &pub, &sig); err != nil {
		if err == sql.ErrNoRows {
			return SignedRelayTx{}, false, nil
		}
		return SignedRelayTx{}, false, dbErr("get", err)
	}
	var tx SignedRelayTx
	copy(tx.Parents[0][:], p1)
	copy(tx.Parents[1][:], p2)
	tx.FeePerHop = uint32(fee)
	copy(tx.SenderPub[:], pub)
	copy(tx.Signature[:], sig)
	return tx, true, nil
}

// GetTips returns the current tip set. Entries are filtered against the
// structural invariant on read, so a caller never observes an id that is
// in fact referenced as a parent.
func (s *DAGStorage) GetTips() ([]TxID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`
		SELECT id FROM dag_nodes
		WHERE is_tip = 1
		AND id NOT IN (SELECT parent1 FROM dag_nodes UNION SELECT parent2 FROM dag_nodes)
	`)
	if err != nil {
		return nil, dbErr("get tips", err)
	}
	defer rows.Close()
	var out []TxID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dbErr("get tips: scan", err)
		}
		var id TxID
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, rows.Err()
}

// Add inserts tx if its id is not already stored, marks it a tip, demotes
// any parent already present to non-tip, and prunes the oldest non-tip rows
// if the store now exceeds its retention bound. Re-adding an existing id is
// a no-op and returns admitted=false with no error.
func (s *DAGStorage) Add(tx SignedRelayTx) (admitted bool, err error) {
	id := tx.ID()
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.containsLocked(id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	dbtx, err := s.db.Begin()
	if err != nil {
		return false, dbErr("add: begin", err)
	}
	defer dbtx.Rollback()

	_, err = dbtx.Exec(`INSERT INTO dag_nodes (id, parent1, parent2, fee_per_hop, sender_pub, signature, created_at, is_tip)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		id[:], tx.Parents[0][:], tx.Parents[1][:], int64(tx.FeePerHop), tx.SenderPub[:], tx.Signature[:], time.Now().UnixNano())
	if err != nil {
		return false, dbErr("add: insert", err)
	}

	if tx.Parents[0] != TxID(ZeroDigest) {
		if _, err = dbtx.Exec(`UPDATE dag_nodes SET is_tip = 0 WHERE id = ?`, tx.Parents[0][:]); err != nil {
			return false, dbErr("add: demote parent1", err)
		}
	}
	if tx.Parents[1] != tx.Parents[0] && tx.Parents[1] != TxID(ZeroDigest) {
		if _, err = dbtx.Exec(`UPDATE dag_nodes SET is_tip = 0 WHERE id = ?`, tx.Parents[1][:]); err != nil {
			return false, dbErr("add: demote parent2", err)
		}
	}

	if err = dbtx.Commit(); err != nil {
		return false, dbErr("add: commit", err)
	}

	if err := s.pruneLocked(); err != nil {
		logrus.WithError(err).Warn("dag storage: prune after add failed")
	}
	return true, nil
}

// pruneLocked removes the oldest non-tip rows until the store is within
// maxTransactions. Must be called with mu held.
func (s *DAGStorage) pruneLocked() error {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM dag_nodes`).Scan(&total); err != nil {
		return dbErr("prune: count", err)
	}
	overage := total - s.maxTransactions
	if overage <= 0 {
		return nil
	}
	rows, err := s.db.Query(`SELECT id, created_at FROM dag_nodes WHERE is_tip = 0 ORDER BY created_at ASC`)
	if err != nil {
		return dbErr("prune: select candidates", err)
	}
	type cand struct {
		id  []byte
		ts  int64
	}
	var cands []cand
	for rows.Next() {
		var c cand
		if err := rows.Scan(&c.id, &c.ts); err != nil {
			rows.Close()
			return dbErr("prune: scan", err)
		}
		cands = append(cands, c)
	}
	rows.Close()
	sort.Slice(cands, func(i, j int) bool { return cands[i].ts < cands[j].ts })

	deleted := 0
	for _, c := range cands {
		if deleted >= overage {
			break
		}
		if bytesEqualGenesis(c.id) {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM dag_nodes WHERE id = ?`, c.id); err != nil {
			return dbErr("prune: delete", err)
		}
		deleted++
	}
	return nil
}

func bytesEqualGenesis(id []byte) bool {
	gid := GenesisTxID
	if len(id) != len(gid) {
		return false
	}
	for i := range id {
		if id[i] != gid[i] {
			return false
		}
	}
	return true
}

// Stats returns the aggregate store statistics (spec §4.2).
func (s *DAGStorage) Stats() (DAGStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats DAGStats
	var weight sql.NullInt64
	if err := s.db.QueryRow(`SELECT COUNT(1), COALESCE(SUM(fee_per_hop), 0) FROM dag_nodes`).Scan(&stats.Total, &weight); err != nil {
		return DAGStats{}, dbErr("stats: totals", err)
	}
	stats.TotalWeight = uint64(weight.Int64)
	if err := s.db.QueryRow(`
		SELECT COUNT(1) FROM dag_nodes
		WHERE is_tip = 1
		AND id NOT IN (SELECT parent1 FROM dag_nodes UNION SELECT parent2 FROM dag_nodes)
	`).Scan(&stats.TipCount); err != nil {
		return DAGStats{}, dbErr("stats: tips", err)
	}
	return stats, nil
}
