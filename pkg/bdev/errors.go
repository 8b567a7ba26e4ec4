package bdev

import "errors"

// ErrUriInvalid is returned for any malformed or unrecognized child URI:
// unknown scheme, missing required component, unrecognized query key, or a
// scheme-specific constraint violation (e.g. size_mb and num_blocks both
// set).
var ErrUriInvalid = errors.New("bdev: invalid uri")
