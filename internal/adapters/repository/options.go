package repository

import (
	gormlogger "gorm.io/gorm/logger"
)

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithBatchSize sets how many rows are inserted per statement.
func WithBatchSize(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogLevel sets the gorm logger level. The default is silent.
func WithLogLevel(level gormlogger.LogLevel) Option {
	return func(s *SQLiteStore) {
		s.logLevel = level
	}
}
