package snapshot

import (
	"fmt"

	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/db"
	pkgredis "github.com/angelmondragon/holopos/pkg/redis"
)

// Open returns the snapshot for key on the configured offline backend.
// Redis is only an option when a client was bootstrapped.
func Open(backend string, dbClient *db.Client, redisClient *pkgredis.Client, key string) (Store, error) {
	switch backend {
	case config.OfflineBackendDB, "":
		if dbClient == nil {
			return nil, fmt.Errorf("offline backend %q needs a database", config.OfflineBackendDB)
		}
		return NewDBSnapshot(dbClient, key)
	case config.OfflineBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("offline backend %q needs redis", config.OfflineBackendRedis)
		}
		return NewRedisSnapshot(redisClient, key)
	default:
		return nil, fmt.Errorf("unsupported offline backend %q", backend)
	}
}
