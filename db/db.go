package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// quietLogger wraps the zapgorm2 bridge to drop ErrRecordNotFound: managers
// translate missing rows into (nil, nil), so a miss is not an error here
type quietLogger struct {
	zapgorm2.Logger
}

func (l *quietLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err == gorm.ErrRecordNotFound {
		return
	}
	l.Logger.Trace(ctx, begin, fc, err)
}

// New connects to PostgreSQL and returns the gorm handle shared by all
// managers. The booking API serves a single salon, so the pool stays small.
func New(logger *zap.Logger, uri string) (*gorm.DB, error) {
	gLogger := zapgorm2.Logger{
		ZapLogger:     logger,
		LogLevel:      gormlogger.Warn,
		SlowThreshold: time.Millisecond * 500,
	}
	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{
		Logger: &quietLogger{
			Logger: gLogger,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "Cannot connect to database")
	}
	pool, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "Cannot get the connection pool")
	}
	pool.SetMaxIdleConns(2)
	pool.SetMaxOpenConns(10)
	pool.SetConnMaxLifetime(time.Minute * 30)
	return db, nil
}
