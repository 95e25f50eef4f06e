package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RateLimitChanged covers playback.rate_limit and playback.burst.
	RateLimitChanged bool

	MaxMessageLengthChanged bool

	AdminRoleChanged bool

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// HotReloadable reports whether d contains a change that can be applied at
// runtime.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.RateLimitChanged || d.MaxMessageLengthChanged || d.AdminRoleChanged
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Playback.RateLimit != new.Playback.RateLimit || old.Playback.Burst != new.Playback.Burst {
		d.RateLimitChanged = true
	}
	d.MaxMessageLengthChanged = old.Playback.MaxMessageLength != new.Playback.MaxMessageLength
	d.AdminRoleChanged = old.Discord.AdminRole != new.Discord.AdminRole

	restart := func(changed bool, name string) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart(old.Server.ListenAddr != new.Server.ListenAddr, "server.listen_addr")
	restart(old.Server.LogFile != new.Server.LogFile, "server.log_file")
	restart(old.Discord.Token != new.Discord.Token, "discord.token")
	restart(old.Discord.CommandGuildID != new.Discord.CommandGuildID, "discord.command_guild_id")
	restart(old.Engines != new.Engines, "engines")
	restart(old.Playback.TempDir != new.Playback.TempDir, "playback.temp_dir")
	restart(old.Storage != new.Storage, "storage")

	return d
}
