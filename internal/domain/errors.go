package domain

import "errors"

var (
	// ErrInvalidBank is returned when the question bank cannot be used for grading.
	ErrInvalidBank = errors.New("invalid question bank")
	// ErrAttemptNotFound is returned when an attempt was never started or is already finalized.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a submitted question ID is not in the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrCorruptLog indicates the result log exists but cannot be parsed.
	ErrCorruptLog = errors.New("result log is corrupt")
	// ErrAppendFailed indicates a graded attempt was not durably saved.
	ErrAppendFailed = errors.New("append result failed")
	// ErrBankMismatch indicates the result log was written against a different bank layout.
	ErrBankMismatch = errors.New("result log columns do not match question bank")
)
