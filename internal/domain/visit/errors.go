package visit

import "errors"

var (
	ErrNotFound          = errors.New("visit not found")
	ErrProcedureNotFound = errors.New("procedure not found")
	ErrAlreadyCompleted  = errors.New("visit is already completed")
	ErrNotModifiable     = errors.New("visit is completed and no longer modifiable")
	ErrMixedCurrency     = errors.New("visit procedures are priced in more than one currency")
	ErrCostTooLarge      = errors.New("procedure cost exceeds the configured maximum")
)
