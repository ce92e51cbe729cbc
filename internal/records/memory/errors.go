package memory

import "errors"

var errNotInitialized = errors.New("store not initialized")
