package instance

import (
	"os"

	"github.com/angelmondragon/affiliate-ledger/pkg/env"
)

// ID names the running replica in logs and lock tokens. It prefers an explicit
// AFFLEDGER_INSTANCE_ID, then platform-provided names, then the hostname.
func ID() string {
	for _, key := range []string{"AFFLEDGER_INSTANCE_ID", "DYNO", "K_REVISION"} {
		if id := env.Get(key, ""); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
