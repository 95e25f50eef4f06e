package discord

import (
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may change a guild's TTS settings: members
// holding the configured admin role, or any member with Manage Server or
// Administrator. With no role configured everyone may.
type PermissionChecker struct {
	mu     sync.RWMutex
	roleID string
}

// NewPermissionChecker creates a PermissionChecker for roleID.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// SetRole replaces the admin role. Used on config reload.
func (p *PermissionChecker) SetRole(roleID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roleID = roleID
}

// CanConfigure reports whether the author of i may run configuration
// commands. Interactions outside a guild never may.
func (p *PermissionChecker) CanConfigure(i *discordgo.InteractionCreate) bool {
	p.mu.RLock()
	roleID := p.roleID
	p.mu.RUnlock()

	if i.Member == nil {
		return false
	}
	if roleID == "" {
		return true
	}
	const manage = discordgo.PermissionManageGuild | discordgo.PermissionAdministrator
	if i.Member.Permissions&manage != 0 {
		return true
	}
	return slices.Contains(i.Member.Roles, roleID)
}
