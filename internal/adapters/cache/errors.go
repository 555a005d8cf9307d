package cache

import "errors"

// ErrCacheMiss means the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")
