package monitor

import "errors"

// ErrSiteGone is returned when a site is deleted while it is being checked.
var ErrSiteGone = errors.New("site no longer exists")
