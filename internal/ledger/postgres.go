package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgCheckViolation    = "23514"
	pgNumericOutOfRange = "22003"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists wallets and ledger entries in PostgreSQL. Row-level
// locks taken with SELECT ... FOR UPDATE serialize transfers per wallet.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithinTx runs fn inside a read-committed transaction. The transaction is
// rolled back on every exit path that does not reach Commit.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&postgresTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const walletColumns = `w.id, w.owner_id, w.owner_type, w.asset_type_id, a.code, w.balance, w.updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		ownerType string
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &ownerType, &w.AssetTypeID, &w.AssetCode, &w.Balance, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.OwnerType = OwnerType(ownerType)
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func findWallet(ctx context.Context, q querier, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error) {
	const query = `
        SELECT ` + walletColumns + `
        FROM wallets w
        INNER JOIN asset_types a ON a.id = w.asset_type_id
        WHERE w.owner_id = $1 AND w.owner_type = $2 AND a.code = $3`
	return scanWallet(q.QueryRow(ctx, query, ownerID, string(ownerType), assetCode))
}

// FindWallet resolves a wallet by owner and asset code.
func (s *PostgresStore) FindWallet(ctx context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error) {
	return findWallet(ctx, s.db, ownerID, ownerType, assetCode)
}

// Balances lists every wallet balance of an owner ordered by asset code.
func (s *PostgresStore) Balances(ctx context.Context, ownerID string, ownerType OwnerType) ([]AssetBalance, error) {
	const query = `
        SELECT a.code, w.balance
        FROM wallets w
        INNER JOIN asset_types a ON a.id = w.asset_type_id
        WHERE w.owner_id = $1 AND w.owner_type = $2
        ORDER BY a.code`
	rows, err := s.db.Query(ctx, query, ownerID, string(ownerType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AssetBalance, 0)
	for rows.Next() {
		var b AssetBalance
		if err := rows.Scan(&b.AssetCode, &b.Balance); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const entryColumns = `id, transaction_id, wallet_id, amount, entry_type, balance_after, description, metadata, created_at`

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			entryType string
			metadata  []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Amount, &entryType, &e.BalanceAfter, &e.Description, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = EntryType(entryType)
		e.CreatedAt = e.CreatedAt.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of entry %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Entries returns a page of a wallet's ledger entries, newest first.
func (s *PostgresStore) Entries(ctx context.Context, walletID int64, page Page) ([]Entry, error) {
	page = page.normalized()
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`, walletID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Journal returns every ledger entry in creation order.
func (s *PostgresStore) Journal(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Wallets returns every wallet ordered by ID.
func (s *PostgresStore) Wallets(ctx context.Context) ([]Wallet, error) {
	rows, err := s.db.Query(ctx, `SELECT `+walletColumns+`
        FROM wallets w
        INNER JOIN asset_types a ON a.id = w.asset_type_id
        ORDER BY w.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// EnsureAssetType registers an asset code if it does not exist yet.
func (s *PostgresStore) EnsureAssetType(ctx context.Context, code string) (AssetType, error) {
	const query = `
        INSERT INTO asset_types (code) VALUES ($1)
        ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
        RETURNING id, code`
	var a AssetType
	if err := s.db.QueryRow(ctx, query, code).Scan(&a.ID, &a.Code); err != nil {
		return AssetType{}, fmt.Errorf("ensure asset type %s: %w", code, err)
	}
	return a, nil
}

// EnsureWallet guarantees a wallet exists for the owner and asset. The boolean
// reports whether this call created it.
func (s *PostgresStore) EnsureWallet(ctx context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, bool, error) {
	const insert = `
        INSERT INTO wallets (owner_id, owner_type, asset_type_id)
        SELECT $1, $2, a.id FROM asset_types a WHERE a.code = $3
        ON CONFLICT (owner_id, owner_type, asset_type_id) DO NOTHING`
	tag, err := s.db.Exec(ctx, insert, ownerID, string(ownerType), assetCode)
	if err != nil {
		return Wallet{}, false, fmt.Errorf("ensure wallet %s/%s: %w", ownerID, assetCode, err)
	}
	w, err := s.FindWallet(ctx, ownerID, ownerType, assetCode)
	if err != nil {
		return Wallet{}, false, err
	}
	return w, tag.RowsAffected() == 1, nil
}

type postgresTx struct {
	q querier
}

func (t *postgresTx) FindWallet(ctx context.Context, ownerID string, ownerType OwnerType, assetCode string) (Wallet, error) {
	return findWallet(ctx, t.q, ownerID, ownerType, assetCode)
}

func (t *postgresTx) LockWallet(ctx context.Context, id int64) (Wallet, error) {
	const query = `
        SELECT ` + walletColumns + `
        FROM wallets w
        INNER JOIN asset_types a ON a.id = w.asset_type_id
        WHERE w.id = $1
        FOR UPDATE OF w`
	return scanWallet(t.q.QueryRow(ctx, query, id))
}

func (t *postgresTx) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	const query = `UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`
	var balance int64
	if err := t.q.QueryRow(ctx, query, id, delta).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgCheckViolation:
				return 0, ErrInsufficientBalance
			case pgNumericOutOfRange:
				return 0, ErrBalanceOverflow
			}
		}
		return 0, err
	}
	return balance, nil
}

func (t *postgresTx) AppendEntry(ctx context.Context, e Entry) error {
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = encoded
	}
	const query = `
        INSERT INTO ledger_entries (transaction_id, wallet_id, amount, entry_type, balance_after, description, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`
	_, err := t.q.Exec(ctx, query, e.TransactionID, e.WalletID, e.Amount, string(e.EntryType), e.BalanceAfter, e.Description, string(metadata))
	return err
}
