package health

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const usersTable = "users"

var errSchemaMissing = errors.New("users table missing, run migrate up")

// DBChecker reports ready once the database answers and the credential
// table exists.
type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	conn := c.db.WithContext(ctx)
	if err := conn.Exec("SELECT 1").Error; err != nil {
		return failed("db", err)
	}
	if !conn.Migrator().HasTable(usersTable) {
		return failed("db", errSchemaMissing)
	}
	return CheckResult{Name: "db", Healthy: true}
}

// RedisChecker is registered only when the registration store or the rate
// limiters run on redis.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return failed("redis", err)
	}
	return CheckResult{Name: "redis", Healthy: true}
}

func failed(name string, err error) CheckResult {
	return CheckResult{Name: name, Error: err.Error()}
}
