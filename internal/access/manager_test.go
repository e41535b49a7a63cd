package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestUngrantedHandle(t *testing.T) {
	m := NewManager()
	h := fhe.Handle{0x01}

	assert.False(t, m.CanDecrypt(h, domain.ServicePrincipal()))
	assert.False(t, m.CanDecrypt(h, domain.AccountPrincipal(alice)))
	assert.False(t, m.CanDecrypt(h, domain.PublicPrincipal()))
	assert.False(t, m.IsPublic(h))
	assert.Nil(t, m.Grants(h))
}

func TestGrantTiers(t *testing.T) {
	m := NewManager()
	h := fhe.Handle{0x02}

	m.GrantService(h)
	assert.True(t, m.CanDecrypt(h, domain.ServicePrincipal()))
	assert.False(t, m.CanDecrypt(h, domain.AccountPrincipal(alice)))
	assert.False(t, m.CanDecrypt(h, domain.PublicPrincipal()))

	m.GrantAccount(h, alice)
	assert.True(t, m.CanDecrypt(h, domain.AccountPrincipal(alice)))
	assert.False(t, m.CanDecrypt(h, domain.AccountPrincipal(bob)))
	assert.False(t, m.CanDecrypt(h, domain.PublicPrincipal()))
}

func TestGrantPublicWidensEverything(t *testing.T) {
	m := NewManager()
	h := fhe.Handle{0x03}

	m.GrantPublic(h)
	assert.True(t, m.IsPublic(h))
	assert.True(t, m.CanDecrypt(h, domain.PublicPrincipal()))
	assert.True(t, m.CanDecrypt(h, domain.ServicePrincipal()))
	assert.True(t, m.CanDecrypt(h, domain.AccountPrincipal(bob)))

	// Idempotent.
	m.GrantPublic(h)
	assert.True(t, m.IsPublic(h))
}

func TestGrantsOnlyGrow(t *testing.T) {
	m := NewManager()
	h := fhe.Handle{0x04}

	m.GrantAccount(h, alice)
	m.GrantService(h)
	assert.Len(t, m.Grants(h), 2)

	// Re-granting adds nothing and removes nothing.
	m.GrantAccount(h, alice)
	m.GrantService(h)
	assert.Len(t, m.Grants(h), 2)

	m.GrantAccount(h, bob)
	m.GrantPublic(h)
	grants := m.Grants(h)
	assert.Len(t, grants, 4)

	kinds := map[domain.PrincipalKind]int{}
	for _, g := range grants {
		kinds[g.Kind]++
		assert.Equal(t, h.Hex(), g.Handle)
	}
	assert.Equal(t, 1, kinds[domain.PrincipalService])
	assert.Equal(t, 2, kinds[domain.PrincipalAccount])
	assert.Equal(t, 1, kinds[domain.PrincipalPublic])
}
