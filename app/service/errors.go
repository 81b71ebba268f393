package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrAmountOutOfRange    = errors.New("amount must be between 5 and 5000")
	ErrCarrierNotSupported = errors.New("destination carrier is not supported")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPushFailed          = errors.New("payment push could not be initiated")
)
