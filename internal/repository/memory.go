package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/studydesk/account-core/internal/errors"
	"github.com/studydesk/account-core/internal/model"
)

// memoryData is one consistent copy of every collection.
type memoryData struct {
	accounts map[string]*model.Account
	payments map[string]*model.PaymentRequest
	sessions map[string]*model.SessionPointer
}

func newMemoryData() *memoryData {
	return &memoryData{
		accounts: make(map[string]*model.Account),
		payments: make(map[string]*model.PaymentRequest),
		sessions: make(map[string]*model.SessionPointer),
	}
}

func (d *memoryData) clone() *memoryData {
	out := newMemoryData()
	for k, v := range d.accounts {
		out.accounts[k] = v.Clone()
	}
	for k, v := range d.payments {
		out.payments[k] = v.Clone()
	}
	for k, v := range d.sessions {
		ptr := *v
		out.sessions[k] = &ptr
	}
	return out
}

// MemoryStore keeps every collection in process memory. It backs tests and is the
// fallback when the configured database cannot be opened.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

func (s *MemoryStore) Accounts() AccountRepository {
	return &memoryAccounts{lock: s.lock, data: s.current}
}

func (s *MemoryStore) Payments() PaymentRequestRepository {
	return &memoryPayments{lock: s.lock, data: s.current}
}

func (s *MemoryStore) Sessions() SessionPointerRepository {
	return &memorySessions{lock: s.lock, data: s.current}
}

// WithinTx runs fn against a private copy of the data and swaps it in only when fn
// succeeds. Other callers block until it finishes.
func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.data.clone()
	tx := &memoryTxStore{data: draft}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = draft
	return nil
}

func (s *MemoryStore) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) current() *memoryData {
	return s.data
}

type memoryTxStore struct {
	data *memoryData
}

func noLock() func() { return func() {} }

func (s *memoryTxStore) get() *memoryData { return s.data }

func (s *memoryTxStore) Accounts() AccountRepository {
	return &memoryAccounts{lock: noLock, data: s.get}
}

func (s *memoryTxStore) Payments() PaymentRequestRepository {
	return &memoryPayments{lock: noLock, data: s.get}
}

func (s *memoryTxStore) Sessions() SessionPointerRepository {
	return &memorySessions{lock: noLock, data: s.get}
}

func (s *memoryTxStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	return fn(s)
}

type memoryAccounts struct {
	lock func() func()
	data func() *memoryData
}

func (r *memoryAccounts) WithTx(*sqlx.Tx) AccountRepository { return r }

func (r *memoryAccounts) List(context.Context) ([]*model.Account, error) {
	defer r.lock()()

	out := make([]*model.Account, 0, len(r.data().accounts))
	for _, a := range r.data().accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (r *memoryAccounts) FindByID(_ context.Context, id string) (*model.Account, error) {
	defer r.lock()()
	return r.data().accounts[id].Clone(), nil
}

func (r *memoryAccounts) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	defer r.lock()()

	email = model.NormalizeEmail(email)
	for _, a := range r.data().accounts {
		if a.Email == email {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memoryAccounts) Upsert(_ context.Context, account *model.Account) error {
	defer r.lock()()

	row := account.Clone()
	row.Email = model.NormalizeEmail(row.Email)
	row.UpdatedAt = time.Now().UTC()
	for id, a := range r.data().accounts {
		if id != row.ID && a.Email == row.Email {
			return apperrors.DuplicateAccount()
		}
	}
	r.data().accounts[row.ID] = row

	account.Email = row.Email
	account.UpdatedAt = row.UpdatedAt
	return nil
}

type memoryPayments struct {
	lock func() func()
	data func() *memoryData
}

func (r *memoryPayments) WithTx(*sqlx.Tx) PaymentRequestRepository { return r }

func (r *memoryPayments) List(context.Context) ([]*model.PaymentRequest, error) {
	defer r.lock()()
	return r.collect(func(*model.PaymentRequest) bool { return true }), nil
}

func (r *memoryPayments) ListByAccount(_ context.Context, accountID string) ([]*model.PaymentRequest, error) {
	defer r.lock()()
	return r.collect(func(p *model.PaymentRequest) bool { return p.AccountID == accountID }), nil
}

func (r *memoryPayments) collect(keep func(*model.PaymentRequest) bool) []*model.PaymentRequest {
	out := make([]*model.PaymentRequest, 0)
	for _, p := range r.data().payments {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

func (r *memoryPayments) FindByID(_ context.Context, id string) (*model.PaymentRequest, error) {
	defer r.lock()()
	return r.data().payments[id].Clone(), nil
}

func (r *memoryPayments) Insert(_ context.Context, req *model.PaymentRequest) error {
	defer r.lock()()

	if _, exists := r.data().payments[req.ID]; exists {
		return apperrors.Conflict(fmt.Sprintf("Payment request %s already exists", req.ID))
	}
	r.data().payments[req.ID] = req.Clone()
	return nil
}

func (r *memoryPayments) Update(_ context.Context, id string, mutator PaymentMutator) (*model.PaymentRequest, error) {
	defer r.lock()()

	current, ok := r.data().payments[id]
	if !ok {
		return nil, nil
	}

	next := current.Clone()
	if err := mutator(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.AccountID = current.AccountID
	next.AccountEmail = current.AccountEmail
	next.AccountName = current.AccountName
	next.SubmittedAt = current.SubmittedAt

	r.data().payments[id] = next
	return next.Clone(), nil
}

type memorySessions struct {
	lock func() func()
	data func() *memoryData
}

func (r *memorySessions) WithTx(*sqlx.Tx) SessionPointerRepository { return r }

func (r *memorySessions) Get(_ context.Context, clientID string) (*model.SessionPointer, error) {
	defer r.lock()()

	ptr, ok := r.data().sessions[clientID]
	if !ok {
		return nil, nil
	}
	out := *ptr
	return &out, nil
}

func (r *memorySessions) Set(_ context.Context, clientID, accountID string) error {
	defer r.lock()()

	r.data().sessions[clientID] = &model.SessionPointer{
		ClientID:  clientID,
		AccountID: accountID,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (r *memorySessions) Clear(_ context.Context, clientID string) error {
	defer r.lock()()

	delete(r.data().sessions, clientID)
	return nil
}
