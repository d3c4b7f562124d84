package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced user or conversation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPolicyViolation means the role policy forbids the requested conversation.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrInvalidInput means the arguments were rejected before touching storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotParticipant means the caller is not a member of the conversation.
	ErrNotParticipant = errors.New("not a participant")
	// ErrStorage wraps any failure of the relational store.
	ErrStorage = errors.New("storage failure")
)

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func invalidErr(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

func notFoundErr(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}
