package models

import "errors"

// Sentinel errors surfaced across the engine. Handlers map these onto HTTP
// statuses; everything else is treated as an internal failure.
var (
	ErrInvalidItem                 = errors.New("item must be published with exactly one correct option")
	ErrItemNotFound                = errors.New("item not found")
	ErrSessionNotFound             = errors.New("session not found")
	ErrSessionNotActive            = errors.New("session is not active")
	ErrDuplicateResponse           = errors.New("item already answered in this session")
	ErrUnknownAdministeredItem     = errors.New("item was not the pending administered item for this session")
	ErrNoItemAvailable             = errors.New("no eligible item available")
	ErrConcurrencyConflict         = errors.New("concurrent session update detected")
	ErrActiveSessionExists         = errors.New("examinee already has an active session")
	ErrSessionNotTerminal          = errors.New("session has not reached a terminal state")
	ErrCalibrationDataInsufficient = errors.New("not enough responses to calibrate")
	ErrCalibrationRunNotFound      = errors.New("calibration run not found")
	ErrCalibrationNotFound         = errors.New("calibration not found")
	ErrUnknownCalibrationMethod    = errors.New("unknown calibration method")
)
