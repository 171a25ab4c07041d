package detail

import "fmt"

// RefNotFoundError reports that the source has no detail payload for a
// listing reference. Stale search rows hit this when a listing is delisted
// between the search and extraction phases.
type RefNotFoundError struct {
	Ref string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("no detail payload for listing %s", e.Ref)
}

// PayloadError reports a detail response that arrived with a success status
// but could not be decoded. It triggers the HTML fallback path once before
// surfacing to the caller.
type PayloadError struct {
	URL string
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("undecodable detail payload from %s: %v", e.URL, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// BlockedError reports that the source refused a detail request.
type BlockedError struct {
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("detail request blocked (status %d)", e.StatusCode)
}
