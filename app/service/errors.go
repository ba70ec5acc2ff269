package service

import "errors"

var (
	ErrInvalidPhoneNumber       = errors.New("invalid phone number")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)
