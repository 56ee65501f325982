// Package hcert decodes and encodes HC1 health credentials:
//
//	"HC1:" + Base45( zlib( COSE_Sign1( CWT claims ) ) )
//
// The health data lives in CWT claim -260; entry 1 holds an EU DCC payload
// and entry -6 an ICVP vaccination record.
package hcert

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/lacpass/healthlink/pkg/base45"
	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/cose"
	"github.com/lacpass/healthlink/pkg/deflate"
)

// Prefix starts every HC1 credential.
const Prefix = "HC1:"

// ICVPKeys are the keys an ICVP vaccination record carries.
var ICVPKeys = []string{"n", "gn", "dob", "v"}

// Normalize removes CR, LF and TAB characters, leading whitespace and
// whitespace directly after the prefix. Scanners and copy/paste insert all
// of these. Trailing spaces are kept: space is a Base45 symbol.
func Normalize(text string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return -1
		}
		return r
	}, text)
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return r != ' ' && unicode.IsSpace(r)
	})
	if hasPrefix(s) {
		s = s[:len(Prefix)] + strings.TrimLeftFunc(s[len(Prefix):], unicode.IsSpace)
	}
	return s
}

// Validate normalizes text and checks the HC1 prefix (case-insensitive).
func Validate(text string) (string, error) {
	s := Normalize(text)
	if !hasPrefix(s) {
		return "", ErrValidation
	}
	return s, nil
}

func hasPrefix(s string) bool {
	return len(s) >= len(Prefix) && strings.EqualFold(s[:len(Prefix)], Prefix)
}

// Decode runs the full decoding pipeline. Signatures are not verified.
func Decode(text string) (*Credential, error) {
	s, err := Validate(text)
	if err != nil {
		return nil, &DecodeError{Stage: StagePrefix, Err: err}
	}

	compressed, err := base45.Decode(s[len(Prefix):])
	if err != nil {
		return nil, &DecodeError{Stage: StageBase45, Err: err}
	}

	raw, err := deflate.Inflate(compressed)
	if err != nil {
		return nil, &DecodeError{Stage: StageInflate, Err: err}
	}

	root, err := claimtree.Decode(raw)
	if err != nil {
		return nil, &DecodeError{Stage: StageCBOR, Err: err}
	}

	env, err := cose.ParseEnvelope(root)
	if err != nil {
		return nil, &DecodeError{Stage: StageEnvelope, Err: err}
	}

	payload, err := claimtree.Decode(env.Payload)
	if err != nil {
		return nil, &DecodeError{Stage: StagePayload, Err: err}
	}
	claims, err := cose.ClaimsFromNode(payload)
	if err != nil {
		return nil, &DecodeError{Stage: StagePayload, Err: err}
	}

	return &Credential{
		Text:     s,
		Envelope: env,
		Payload:  payload,
		Claims:   claims,
	}, nil
}

// Encode signs claims and packs them into an HC1 credential.
func Encode(ctx context.Context, claims *cose.Claims, config *cose.MessageConfig) (string, error) {
	msg, err := cose.IssueCWT(ctx, claims, config)
	if err != nil {
		return "", fmt.Errorf("hcert: %w", err)
	}
	compressed, err := deflate.Deflate(msg)
	if err != nil {
		return "", fmt.Errorf("hcert: %w", err)
	}
	return Prefix + base45.Encode(compressed), nil
}
