package persistence

import (
	"context"
	"database/sql"
	"time"

	"social-publisher/infrastructure/logger"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Pinger is anything that can report whether its backing service answers.
type Pinger func(ctx context.Context) error

// HealthRepository pings every store the process was started with.
type HealthRepository struct {
	postgresDB *sql.DB
	mssqlDB    *sql.DB
	mongoDb    *mongo.Client
	extra      map[string]Pinger
}

func NewHealthRepository(postgresDB, mssqlDB *sql.DB, mongoDb *mongo.Client) *HealthRepository {
	return &HealthRepository{postgresDB: postgresDB, mssqlDB: mssqlDB, mongoDb: mongoDb, extra: map[string]Pinger{}}
}

// With registers a named dependency that lives outside this package, such as Redis.
func (r *HealthRepository) With(name string, p Pinger) *HealthRepository {
	if p != nil {
		r.extra[name] = p
	}
	return r
}

// Check returns "ok" or the error text per configured component.
// A nil component is not configured and is left out.
func (r *HealthRepository) Check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out := make(map[string]string)
	record := func(name string, err error) {
		if err != nil {
			logger.GetLogger().WithField("component", name).WithField("error", err).Warn("Readiness check failed")
			out[name] = err.Error()
			return
		}
		out[name] = "ok"
	}
	if r.postgresDB != nil {
		record("postgres", r.postgresDB.PingContext(ctx))
	}
	if r.mssqlDB != nil {
		record("mssql", r.mssqlDB.PingContext(ctx))
	}
	if r.mongoDb != nil {
		record("mongo", r.mongoDb.Ping(ctx, nil))
	}
	for name, p := range r.extra {
		record(name, p(ctx))
	}
	return out
}
