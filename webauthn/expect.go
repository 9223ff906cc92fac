package webauthn

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/pkg/errors"
)

// ChallengeFunc lets the caller decide whether an observed challenge is
// acceptable, for deployments that track issued challenges out of band. It
// is invoked exactly once per verification call; an error is propagated as
// is, while returning false yields ErrChallengeMismatch.
type ChallengeFunc func(ctx context.Context, challenge string) (bool, error)

// expectations carries the caller policy for one ceremony, with the
// one-or-many parameters already normalized into slices.
type expectations struct {
	types      []string
	origins    []string
	rpIDs      []string
	challenge  string
	challengeF ChallengeFunc
}

// oneOrMany normalizes a singular parameter and its plural twin. The
// singular value, when set, takes position zero so it is the one reported
// back in results.
func oneOrMany(single string, plural []string) []string {
	if single == "" {
		return plural
	}
	return append([]string{single}, plural...)
}

func (e *expectations) checkType(ceremonyType string, observed string) error {
	allowed := e.types
	if len(allowed) == 0 {
		allowed = []string{ceremonyType}
	}
	for _, t := range allowed {
		if observed == t {
			return nil
		}
	}
	return fmt.Errorf("%w: got %q, want one of %q", ErrTypeMismatch, observed, allowed)
}

func (e *expectations) checkChallenge(ctx context.Context, observed string) error {
	if e.challengeF != nil {
		ok, err := e.challengeF(ctx, observed)
		if err != nil {
			return errors.Wrap(err, "challenge predicate")
		}
		if !ok {
			return fmt.Errorf("%w: rejected by caller predicate", ErrChallengeMismatch)
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(observed), []byte(e.challenge)) != 1 {
		return fmt.Errorf("%w: got %q", ErrChallengeMismatch, observed)
	}
	return nil
}

func (e *expectations) checkOrigin(observed string) error {
	for _, o := range e.origins {
		if observed == o {
			return nil
		}
	}
	return fmt.Errorf("%w: got %q, want one of %q", ErrOriginMismatch, observed, e.origins)
}

// matchRPID returns the first expected RP ID whose SHA-256 equals the
// authenticator-reported hash. Order only decides which ID is reported; the
// comparison covers the whole set regardless.
func (e *expectations) matchRPID(rpIDHash []byte) (string, error) {
	for _, id := range e.rpIDs {
		sum := sha256.Sum256([]byte(id))
		if subtle.ConstantTimeCompare(sum[:], rpIDHash) == 1 {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: candidates %q", ErrRPIDMismatch, e.rpIDs)
}
