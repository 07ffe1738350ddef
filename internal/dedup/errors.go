package dedup

import "errors"

// ErrStoreFull — хранилище в памяти достигло лимита непросроченных отметок.
var ErrStoreFull = errors.New("dedup store is full")
