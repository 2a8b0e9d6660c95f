package sites

import "errors"

// Site errors.
var (
	ErrSiteNotFound     = errors.New("site not found")
	ErrSiteQuotaReached = errors.New("site limit of the current plan reached")
	ErrIntervalTooShort = errors.New("check interval is below the minimum of the current plan")
	ErrCheckTooSoon     = errors.New("site was checked too recently, try again later")
	ErrInvalidAction    = errors.New("repair action is not valid")
	ErrCommandRequired  = errors.New("custom_command action requires a command")
	ErrIncidentMismatch = errors.New("incident does not belong to this site")
)
