package storage

import "errors"

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrTokenExists       = errors.New("refresh token already exists")
)
