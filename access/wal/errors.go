package wal

import (
	"github.com/pkg/errors"

	"github.com/kuibadb/kuiba/errs"
)

var (
	ErrShortRecord = errors.Wrap(errs.ErrShortRead, "wal: truncated record header")
	ErrCrcMismatch = errs.ErrCRCMismatch
)
