// Package access tracks decrypt permissions per confidential value. The
// grant set for a handle only ever grows: service-only widens to
// service+accounts widens to public, and nothing is ever revoked. This is the
// only place confidentiality is allowed to degrade, and only in that
// direction.
package access

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

// entry is the grant set for one handle.
type entry struct {
	service  bool
	accounts map[common.Address]struct{}
	public   bool
}

// Manager is the permission lattice. Unlike the ledger and registry it
// carries its own lock: the decryption gateway reads it concurrently with
// engine writes.
type Manager struct {
	mu     sync.RWMutex
	grants map[fhe.Handle]*entry
	now    func() time.Time
}

// NewManager creates an empty permission manager.
func NewManager() *Manager {
	return &Manager{
		grants: make(map[fhe.Handle]*entry),
		now:    time.Now,
	}
}

func (m *Manager) entryFor(h fhe.Handle) *entry {
	e, ok := m.grants[h]
	if !ok {
		e = &entry{accounts: make(map[common.Address]struct{})}
		m.grants[h] = e
	}
	return e
}

// GrantService allows the issuing service to decrypt the value.
func (m *Manager) GrantService(h fhe.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryFor(h).service = true
}

// GrantAccount allows the given account to decrypt the value.
func (m *Manager) GrantAccount(h fhe.Handle, account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryFor(h).accounts[account] = struct{}{}
}

// GrantPublic allows anyone to decrypt the value. The widening is
// irreversible and calling it again is a no-op.
func (m *Manager) GrantPublic(h fhe.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryFor(h).public = true
}

// CanDecrypt reports whether the principal may request cleartext recovery of
// the value behind h. A public grant satisfies every principal.
func (m *Manager) CanDecrypt(h fhe.Handle, p domain.Principal) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.grants[h]
	if !ok {
		return false
	}
	if e.public {
		return true
	}
	switch p.Kind {
	case domain.PrincipalService:
		return e.service
	case domain.PrincipalAccount:
		_, ok := e.accounts[p.Account]
		return ok
	default:
		return false
	}
}

// IsPublic reports whether the value has been publicly revealed.
func (m *Manager) IsPublic(h fhe.Handle) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.grants[h]
	return ok && e.public
}

// Grants returns the audit-log form of the handle's grant set, stamped with
// the current time. Ordering is service, accounts (unordered), public.
func (m *Manager) Grants(h fhe.Handle) []domain.Grant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.grants[h]
	if !ok {
		return nil
	}

	now := m.now()
	hex := h.Hex()
	var out []domain.Grant
	if e.service {
		out = append(out, domain.Grant{Handle: hex, Kind: domain.PrincipalService, GrantedAt: now})
	}
	for acct := range e.accounts {
		a := acct.Hex()
		out = append(out, domain.Grant{Handle: hex, Kind: domain.PrincipalAccount, Account: &a, GrantedAt: now})
	}
	if e.public {
		out = append(out, domain.Grant{Handle: hex, Kind: domain.PrincipalPublic, GrantedAt: now})
	}
	return out
}
