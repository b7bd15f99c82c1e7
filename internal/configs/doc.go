// Package configs loads the relay configuration.
//
// The configuration is a TOML file, by default at
// $XDG_CONFIG_HOME/sealdrop/config.toml:
//
//	[[targets]]
//	name = "alice"
//	key_url = "https://keys.example.com/alice.json"
//
//	[upload]
//	url = "http://localhost:8080/upload"
//	retries = 3
//
//	[mail]
//	host = "smtp.example.com"
//	from = "relay@example.com"
//	to = ["ops@example.com"]
//
//	[ssh]
//	identity_file = "~/.ssh/id_ed25519"
//	poll_interval = "5s"
//
// Only the sections a command needs are validated: relay encrypt needs
// targets, relay send needs [upload].
package configs
