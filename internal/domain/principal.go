package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PrincipalKind is the tier a decrypt permission is granted to.
type PrincipalKind string

const (
	// PrincipalService is the issuing service itself.
	PrincipalService PrincipalKind = "service"
	// PrincipalAccount is one specific account.
	PrincipalAccount PrincipalKind = "account"
	// PrincipalPublic is anyone. Granting it is irreversible.
	PrincipalPublic PrincipalKind = "public"
)

// Principal identifies who is asking to decrypt a value. Account is only
// meaningful for PrincipalAccount.
type Principal struct {
	Kind    PrincipalKind
	Account common.Address
}

// ServicePrincipal returns the issuing-service principal.
func ServicePrincipal() Principal {
	return Principal{Kind: PrincipalService}
}

// AccountPrincipal returns the principal for one account.
func AccountPrincipal(account common.Address) Principal {
	return Principal{Kind: PrincipalAccount, Account: account}
}

// PublicPrincipal returns the anonymous public principal.
func PublicPrincipal() Principal {
	return Principal{Kind: PrincipalPublic}
}

// Grant is one append-only permission record: the named principal tier may
// request cleartext recovery of the value behind Handle. Grants only ever
// widen access; none is ever revoked.
type Grant struct {
	Handle    string
	Kind      PrincipalKind
	Account   *string // hex address, set only for PrincipalAccount
	GrantedAt time.Time
}
