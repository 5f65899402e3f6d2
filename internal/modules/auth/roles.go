// Package auth provides the role table consulted as the authorization oracle.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/utils"
)

// RoleTable is an in-memory role assignment. Holders of the admin role pass
// every role check.
type RoleTable struct {
	mu     sync.RWMutex
	grants map[domain.Role]map[domain.Address]struct{}
	log    zerolog.Logger
}

// NewRoleTable creates an empty role table
func NewRoleTable(log zerolog.Logger) *RoleTable {
	return &RoleTable{
		grants: make(map[domain.Role]map[domain.Address]struct{}),
		log:    log.With().Str("component", "roles").Logger(),
	}
}

// HasRole implements domain.Authorizer
func (t *RoleTable) HasRole(_ context.Context, role domain.Role, caller domain.Address) bool {
	if caller.IsZero() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.grants[domain.RoleAdmin][caller]; ok {
		return true
	}
	_, ok := t.grants[role][caller]
	return ok
}

// Grant gives role to addr
func (t *RoleTable) Grant(role domain.Role, addr domain.Address) error {
	if addr.IsZero() {
		return domain.ErrZeroAddress.Wrapf("grant %s", role)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	holders, ok := t.grants[role]
	if !ok {
		holders = make(map[domain.Address]struct{})
		t.grants[role] = holders
	}
	holders[addr] = struct{}{}
	t.log.Info().Str("role", string(role)).Str("address", addr.String()).Msg("Role granted")
	return nil
}

// Revoke removes role from addr
func (t *RoleTable) Revoke(role domain.Role, addr domain.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.grants[role], addr)
}

// Holders lists the addresses holding role, sorted
func (t *RoleTable) Holders(role domain.Role) []domain.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Address, 0, len(t.grants[role]))
	for addr := range t.grants[role] {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseGrants parses "ROLE=a|b;ROLE2=c" into grants on the table
func (t *RoleTable) ParseGrants(spec string) error {
	for _, entry := range utils.ParseList(spec, ";") {
		role, holders, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid role grant %q: expected ROLE=addr|addr", entry)
		}
		role = strings.TrimSpace(role)
		for _, holder := range utils.ParseList(holders, "|") {
			if err := t.Grant(domain.Role(role), domain.Address(holder)); err != nil {
				return fmt.Errorf("failed to grant %s: %w", role, err)
			}
		}
	}
	return nil
}
