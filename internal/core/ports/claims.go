package ports

import "context"

// ClaimRegistry records usernames claimed by in-flight batches so that
// concurrently running jobs do not race each other to the same name. Claims
// are advisory and short-lived; the remote directory remains the source of
// truth once an account exists.
type ClaimRegistry interface {
	// Claimed reports whether username is currently reserved.
	Claimed(ctx context.Context, username string) (bool, error)
	// Claim reserves username. Reserving an already-claimed name is not an
	// error.
	Claim(ctx context.Context, username string) error
}
