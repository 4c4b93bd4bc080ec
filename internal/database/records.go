package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/repository"
)

// Records is a repository.Repository over the records table.
type Records struct {
	db     *DB
	closed atomic.Bool
}

var _ repository.Repository = (*Records)(nil)

// NewRecords returns a store over db. Closing the store closes db.
func NewRecords(db *DB) *Records {
	return &Records{db: db}
}

const selectColumns = `SELECT name, type, time_to_live, data FROM records`

func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrClosed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", repository.ErrStoreAccess, op, err)
}

func (s *Records) check() error {
	if s.closed.Load() {
		return repository.ErrClosed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (dns.Record, error) {
	var (
		owner string
		rt    uint16
		ttl   int32
		data  []byte
	)
	if err := row.Scan(&owner, &rt, &ttl, &data); err != nil {
		return nil, err
	}
	return decodeRow(owner, rt, ttl, data)
}

func decodeRow(owner string, rt uint16, ttl int32, data []byte) (dns.Record, error) {
	name, err := dns.NewName(owner)
	if err != nil {
		return nil, fmt.Errorf("stored name %q: %w", owner, err)
	}
	return dns.DecodeRecordData(name, dns.RecordType(rt), uint16(dns.ClassIN), ttl, data, nil)
}

func collect(rows *sql.Rows) ([]dns.Record, error) {
	defer rows.Close()
	var out []dns.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Records) query(ctx context.Context, op, query string, args ...any) ([]dns.Record, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	recs, err := collect(rows)
	if err != nil {
		return nil, storeError(op, err)
	}
	return recs, nil
}

// targetOf returns the stored target column for alias-like records.
func targetOf(r dns.Record) any {
	switch v := r.(type) {
	case dns.CNAMERecord:
		return v.Target.String()
	case dns.NSRecord:
		return v.Target.String()
	default:
		return nil
	}
}

// Insert stores r. A record with the same owner, type and RDATA has its TTL
// replaced.
func (s *Records) Insert(ctx context.Context, r dns.Record) error {
	if err := repository.Storable(r); err != nil {
		return err
	}
	if err := s.check(); err != nil {
		return err
	}
	data, err := dns.EncodeRecordData(r)
	if err != nil {
		return err
	}
	h := r.Header()
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO records (name, type, time_to_live, data, target)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, type, data) DO UPDATE SET
			time_to_live = excluded.time_to_live
	`, h.Name.String(), uint16(r.Type()), h.TTL, data, targetOf(r))
	if err != nil {
		return storeError("insert "+h.Name.String(), err)
	}
	return nil
}

func (s *Records) Delete(ctx context.Context, r dns.Record) ([]dns.Record, error) {
	if err := repository.Storable(r); err != nil {
		return nil, err
	}
	data, err := dns.EncodeRecordData(r)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	return s.query(ctx, "delete", `
		DELETE FROM records
		WHERE name = ? AND type = ? AND data = ? AND time_to_live = ?
		RETURNING name, type, time_to_live, data
	`, h.Name.String(), uint16(r.Type()), data, h.TTL)
}

func (s *Records) DeleteAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error) {
	return s.query(ctx, "delete by type",
		`DELETE FROM records WHERE type = ? RETURNING name, type, time_to_live, data`, uint16(rt))
}

func (s *Records) DeleteAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error) {
	return s.query(ctx, "delete by name",
		`DELETE FROM records WHERE name = ? RETURNING name, type, time_to_live, data`, name.String())
}

func (s *Records) DeleteAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	return s.query(ctx, "delete by name and type",
		`DELETE FROM records WHERE name = ? AND type = ? RETURNING name, type, time_to_live, data`,
		name.String(), uint16(rt))
}

func (s *Records) Clear(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return storeError("clear", err)
	}
	return nil
}

func (s *Records) GetAll(ctx context.Context) ([]dns.Record, error) {
	return s.query(ctx, "get all", selectColumns+` ORDER BY id`)
}

func (s *Records) GetAllNames(ctx context.Context) ([]dns.Name, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.conn.QueryContext(ctx, `SELECT name FROM records GROUP BY name ORDER BY MIN(id)`)
	if err != nil {
		return nil, storeError("get names", err)
	}
	defer rows.Close()
	var names []dns.Name
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, storeError("get names", err)
		}
		n, err := dns.NewName(owner)
		if err != nil {
			return nil, storeError("get names", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("get names", err)
	}
	return names, nil
}

func (s *Records) GetAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error) {
	return s.query(ctx, "get by name", selectColumns+` WHERE name = ? ORDER BY id`, name.String())
}

func (s *Records) GetAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	return s.query(ctx, "get by name and type",
		selectColumns+` WHERE name = ? AND type = ? ORDER BY id`, name.String(), uint16(rt))
}

func (s *Records) GetAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error) {
	return s.query(ctx, "get by type", selectColumns+` WHERE type = ? ORDER BY id`, uint16(rt))
}

// GetAllChainsByNameAndType joins every CNAME owned by name with the records
// of type rt owned by its target.
func (s *Records) GetAllChainsByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]repository.AliasChain, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT c.time_to_live, c.target, r.name, r.type, r.time_to_live, r.data
		FROM records c
		JOIN records r ON r.name = c.target
		WHERE c.name = ? AND c.type = ? AND r.type = ?
		ORDER BY c.id, r.id
	`, name.String(), uint16(dns.TypeCNAME), uint16(rt))
	if err != nil {
		return nil, storeError("get chains", err)
	}
	defer rows.Close()

	var chains []repository.AliasChain
	for rows.Next() {
		var (
			aliasTTL int32
			target   string
			owner    string
			recType  uint16
			ttl      int32
			data     []byte
		)
		if err := rows.Scan(&aliasTTL, &target, &owner, &recType, &ttl, &data); err != nil {
			return nil, storeError("get chains", err)
		}
		targetName, err := dns.NewName(target)
		if err != nil {
			return nil, storeError("get chains", err)
		}
		rec, err := decodeRow(owner, recType, ttl, data)
		if err != nil {
			return nil, storeError("get chains", err)
		}
		chain, err := repository.NewAliasChain(dns.NewCNAMERecord(name, aliasTTL, targetName), rec)
		if err != nil {
			return nil, err
		}
		chains = append(chains, chain)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("get chains", err)
	}
	return chains, nil
}

// Close marks the store closed and closes the database.
func (s *Records) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
