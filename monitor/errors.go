package monitor

import "errors"

// ErrNotFound is returned when a vendor, page, event, or snapshot does not exist.
var ErrNotFound = errors.New("monitor: not found")

// ErrInvalidInput is returned when input fails validation.
var ErrInvalidInput = errors.New("monitor: invalid input")

// ErrDuplicatePage is returned when the vendor already watches the URL.
var ErrDuplicatePage = errors.New("monitor: page with this URL already exists for vendor")

// ErrInvalidVerdict is returned for unknown verdict values.
var ErrInvalidVerdict = errors.New("monitor: invalid verdict")

// ErrEmptyBaseline is returned when a baseline has no text after cleanup.
var ErrEmptyBaseline = errors.New("monitor: baseline text is empty")

// ErrPagePaused is returned when a check targets a paused page.
var ErrPagePaused = errors.New("monitor: page is paused")

// ErrAlreadySeeded is returned when archive seeding hits a page that
// already has snapshots.
var ErrAlreadySeeded = errors.New("monitor: page already has snapshots")

// ErrNoCaptures is returned when the archive has no usable captures.
var ErrNoCaptures = errors.New("monitor: no archive captures found")
