package script

import (
	"github.com/google/uuid"

	"github.com/cmdscript/cmdscript/core/mqtt"
)

// Accumulate folds the connection-config CFG_* commands preceding the
// first CONNECT into an immutable SessionConfig, last write wins.
// Everything else, including any CFG_* at or after the first CONNECT
// (which the engine rejects) and all CFG_PUB_EACH commands, is returned
// as the executable step sequence in source order.
func Accumulate(cmds []Command) (mqtt.SessionConfig, []Command) {
	cfg := mqtt.SessionConfig{
		ClientID:     "cmdscript-" + uuid.NewString(),
		CleanSession: true,
		KeepaliveSec: 60,
	}
	steps := make([]Command, 0, len(cmds))
	connected := false
	for _, cmd := range cmds {
		if _, ok := cmd.(Connect); ok {
			connected = true
		}
		if connected || !IsConnectionConfig(cmd) {
			steps = append(steps, cmd)
			continue
		}
		switch c := cmd.(type) {
		case ClientID:
			cfg.ClientID = c.ID
		case CleanSession:
			cfg.CleanSession = c.Enabled
		case Keepalive:
			cfg.KeepaliveSec = c.Seconds
		case Credentials:
			cfg.Username = c.Username
			cfg.Password = c.Password
		case UseTLS:
			cfg.UseTLS = c.Enabled
		case TLSCert:
			cfg.TLSCert = c.CertFile
			cfg.TLSKey = c.KeyFile
		}
	}
	return cfg, steps
}
