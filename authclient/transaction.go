package authclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/yeiniel/authfacade/oidc"
)

// Transaction is an in-flight login: the oidc request sent to the provider
// and the application state to hand back once the user returns.
type Transaction struct {
	Request  oidc.Request
	AppState interface{}
}

// TransactionStore keeps login transactions keyed by their state.  Take
// removes the transaction, so each one completes at most once.
type TransactionStore interface {
	Save(ctx context.Context, tx *Transaction) error
	Take(ctx context.Context, state string) (*Transaction, error)
}

// MemoryTransactionStore is a TransactionStore kept in process memory.
// Expired transactions are dropped on Save.
type MemoryTransactionStore struct {
	mu  sync.Mutex
	txs map[string]*Transaction
}

var _ TransactionStore = (*MemoryTransactionStore)(nil)

// NewMemoryTransactionStore returns an empty MemoryTransactionStore.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{txs: map[string]*Transaction{}}
}

// Save stores the transaction.
func (s *MemoryTransactionStore) Save(_ context.Context, tx *Transaction) error {
	const op = "MemoryTransactionStore.Save"
	switch {
	case tx == nil:
		return fmt.Errorf("%s: transaction is nil: %w", op, ErrNilParameter)
	case tx.Request == nil:
		return fmt.Errorf("%s: transaction request is nil: %w", op, ErrNilParameter)
	case tx.Request.State() == "":
		return fmt.Errorf("%s: transaction state is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.txs {
		if v.Request.IsExpired() {
			delete(s.txs, k)
		}
	}
	s.txs[tx.Request.State()] = tx
	return nil
}

// Take returns and removes the transaction for state.  It returns ErrNotFound
// for unknown states.
func (s *MemoryTransactionStore) Take(_ context.Context, state string) (*Transaction, error) {
	const op = "MemoryTransactionStore.Take"
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[state]
	if !ok {
		return nil, fmt.Errorf("%s: transaction %q: %w", op, state, ErrNotFound)
	}
	delete(s.txs, state)
	return tx, nil
}

// Len returns the number of stored transactions.
func (s *MemoryTransactionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}
