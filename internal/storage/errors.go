package storage

import "errors"

var (
	ErrCacheMiss     = errors.New("cache miss")
	ErrInvalidKey    = errors.New("invalid cache key")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageInit   = errors.New("storage initialization failed")
	ErrFileOperation = errors.New("file operation failed")
)
