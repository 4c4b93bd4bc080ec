// Package repository defines the record store contract and the decorators
// that put a bounded cache and a negative-lookup filter in front of it.
//
// A typical stack, outermost first:
//
//	Filtered -> Caching -> database.Records
//
// Filtered owns the Bloom filter and the read/write lock that keeps it
// coherent with the store; Caching owns the two FIFO caches and flushes them
// on every write.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/xzax/axdns/internal/dns"
)

var (
	// ErrStoreAccess wraps every failure reported by a backing store.
	ErrStoreAccess = errors.New("record store access failed")

	// ErrCacheInconsistency reports store results that do not match the
	// key they were requested for; such results are never cached.
	ErrCacheInconsistency = errors.New("cache inconsistency")

	// ErrClosed is returned by every operation on a closed repository.
	ErrClosed = errors.New("repository is closed")

	// ErrInvalidAliasChain reports a CNAME whose target does not own the
	// paired record.
	ErrInvalidAliasChain = errors.New("alias target does not own record")
)

// CacheKey identifies a record set by owner name and type.
type CacheKey struct {
	Name dns.Name
	Type dns.RecordType
}

func (k CacheKey) String() string {
	return k.Name.String() + "/" + k.Type.String()
}

// AliasChain pairs a CNAME with a record owned by its target.
type AliasChain struct {
	Alias  dns.CNAMERecord
	Record dns.Record
}

// NewAliasChain checks that alias.Target owns record.
func NewAliasChain(alias dns.CNAMERecord, record dns.Record) (AliasChain, error) {
	if record == nil {
		return AliasChain{}, fmt.Errorf("%w: nil record for alias %s", ErrInvalidAliasChain, alias.Name)
	}
	if alias.Target != record.Header().Name {
		return AliasChain{}, fmt.Errorf("%w: %s points at %s, record is owned by %s",
			ErrInvalidAliasChain, alias.Name, alias.Target, record.Header().Name)
	}
	return AliasChain{Alias: alias, Record: record}, nil
}

// Reader is the read side of the store contract.
type Reader interface {
	GetAll(ctx context.Context) ([]dns.Record, error)
	GetAllNames(ctx context.Context) ([]dns.Name, error)
	GetAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error)
	GetAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error)
	GetAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error)

	// GetAllChainsByNameAndType returns, for every CNAME owned by name,
	// each record of type rt owned by that CNAME's target.
	GetAllChainsByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]AliasChain, error)
}

// Writer is the mutating side of the store contract. Deletes return the
// records they removed.
type Writer interface {
	Insert(ctx context.Context, r dns.Record) error
	Delete(ctx context.Context, r dns.Record) ([]dns.Record, error)
	DeleteAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error)
	DeleteAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error)
	DeleteAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error)
	Clear(ctx context.Context) error
}

// Repository is the full record store contract.
type Repository interface {
	Reader
	Writer
	Close() error
}

// Storable reports whether r can be kept in a store. OPT is a per-message
// pseudo-record and never is.
func Storable(r dns.Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrStoreAccess)
	}
	if r.Type() == dns.TypeOPT {
		return fmt.Errorf("%w: OPT records cannot be stored", dns.ErrUnknownRecordType)
	}
	if !r.Type().Known() {
		return fmt.Errorf("%w: type %d", dns.ErrUnknownRecordType, uint16(r.Type()))
	}
	return nil
}
