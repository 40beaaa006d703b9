package ingest

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation_error"
	KindCorruptImage ErrorKind = "corrupt_image"
	KindNoFile       ErrorKind = "no_file_provided"
	KindNotFound     ErrorKind = "not_found"
	KindStorageWrite ErrorKind = "storage_write_failure"
	KindDatabase     ErrorKind = "database_failure"
	KindInternal     ErrorKind = "internal_error"
)

// HTTPStatus maps an error kind to the status code returned to clients.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation, KindCorruptImage, KindNoFile:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may safely repeat the failed operation.
func (k ErrorKind) Retryable() bool {
	return k == KindStorageWrite || k == KindDatabase
}

type Stage string

const (
	StageReceived          Stage = "received"
	StageValidated         Stage = "validated"
	StageHashed            Stage = "hashed"
	StageDedupHit          Stage = "dedup_hit"
	StageDedupMiss         Stage = "dedup_miss"
	StageGenerated         Stage = "generated"
	StageStored            Stage = "stored"
	StageRecordsInserted   Stage = "records_inserted"
	StagePrimaryReconciled Stage = "primary_reconciled"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// PipelineError is the only error type the service returns. Stage is the last
// stage reached before the failure.
type PipelineError struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches any PipelineError of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message or stage.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation   = &PipelineError{Kind: KindValidation}
	ErrCorruptImage = &PipelineError{Kind: KindCorruptImage}
	ErrNoFile       = &PipelineError{Kind: KindNoFile, Message: "no file provided"}
	ErrNotFound     = &PipelineError{Kind: KindNotFound}
	ErrStorageWrite = &PipelineError{Kind: KindStorageWrite}
	ErrDatabase     = &PipelineError{Kind: KindDatabase}
)

func newError(kind ErrorKind, stage Stage, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Message: message, Err: err}
}

func validationError(stage Stage, format string, args ...any) *PipelineError {
	return newError(KindValidation, stage, fmt.Sprintf(format, args...), nil)
}

func notFoundError(stage Stage, format string, args ...any) *PipelineError {
	return newError(KindNotFound, stage, fmt.Sprintf(format, args...), nil)
}

func databaseError(stage Stage, err error) *PipelineError {
	return newError(KindDatabase, stage, "database operation failed", err)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
