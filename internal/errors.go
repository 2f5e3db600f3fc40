package internal

import "errors"

var (
	ErrConfig            = errors.New("config error")
	ErrEmptyCorpus       = errors.New("empty corpus")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrIndexLoad         = errors.New("index load error")
	ErrRetrieval         = errors.New("retrieval error")
	ErrInvalidK          = errors.New("k must be at least 1")
	ErrEmptyText         = errors.New("cannot embed empty text")
	ErrNoProvider        = errors.New("no chat provider configured")
)
