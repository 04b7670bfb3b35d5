package domain

import "errors"

var (
	// ErrInvalidOffset is returned when a zone offset is out of range or malformed.
	ErrInvalidOffset = errors.New("runhours: invalid utc offset")
	// ErrInvalidDate is returned when a date string is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("runhours: invalid date")
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("runhours: end date before start date")
	// ErrInvalidState is returned for state payloads other than ON/OFF.
	ErrInvalidState = errors.New("runhours: invalid state")
	// ErrEmptyAssetID is returned when an asset id is empty.
	ErrEmptyAssetID = errors.New("runhours: empty asset id")
	// ErrInvalidDuration is returned when an ON duration falls outside one day.
	ErrInvalidDuration = errors.New("runhours: on duration out of range")
	// ErrNoWatermark is returned when an asset has no persisted run-hour record.
	ErrNoWatermark = errors.New("runhours: no watermark")
	// ErrNoLogsFound is returned when earliest-log discovery exhausts its budget.
	ErrNoLogsFound = errors.New("runhours: no logs found")
)
