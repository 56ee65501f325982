package hcert

import (
	"errors"
	"fmt"

	"github.com/lacpass/healthlink/pkg/deflate"
)

// Sentinel errors.
var (
	// ErrValidation indicates the text is not an HC1 credential.
	ErrValidation = errors.New("hcert: credential must start with " + Prefix)

	// ErrFormat indicates a malformed Base45, CBOR or COSE layer.
	ErrFormat = errors.New("hcert: malformed credential")

	// ErrCompression indicates the compressed layer could not be inflated.
	ErrCompression = deflate.ErrCompression
)

// Stage names the decoding layer that failed.
type Stage string

// Decoding stages, in pipeline order.
const (
	StagePrefix   Stage = "prefix"
	StageBase45   Stage = "base45"
	StageInflate  Stage = "inflate"
	StageCBOR     Stage = "cbor"
	StageEnvelope Stage = "envelope"
	StagePayload  Stage = "payload"
)

// DecodeError is returned by Decode.
type DecodeError struct {
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("hcert: %s stage: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is maps the stage onto the package sentinels.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Stage == StagePrefix
	case ErrCompression:
		return e.Stage == StageInflate
	case ErrFormat:
		return e.Stage != StagePrefix && e.Stage != StageInflate
	}
	return false
}
