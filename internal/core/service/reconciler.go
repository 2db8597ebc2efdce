package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openlms/provisioner/internal/core/ports"
)

// Reconciler extends batch-local username uniqueness to global uniqueness by
// probing the remote directory and walking the numeric suffix chain
// base, base1, base2, … until a free name is found.
//
// Resolution runs once per row, in row order, before any create or enrol call
// for that row; sequential probing is what keeps concurrent rows from racing
// each other to the same name.
type Reconciler struct {
	dir    ports.Directory
	claims ports.ClaimRegistry
	log    zerolog.Logger
}

func NewReconciler(dir ports.Directory, claims ports.ClaimRegistry, log zerolog.Logger) *Reconciler {
	return &Reconciler{dir: dir, claims: claims, log: log}
}

// maxSuffixProbes bounds the suffix walk so a persistent remote outage (every
// probe failing, every failure read as "taken") cannot spin the worker
// forever. Past the bound only the remote probe is waived: the batch-local set
// and the claim registry still advance the suffix, keeping candidates distinct
// within and across batches, and the creation step surfaces any real remote
// duplicate.
const maxSuffixProbes = 100

// Resolve returns the first candidate not claimed within this batch, not
// claimed by a concurrent batch, and not present remotely. The second return
// is a human-readable audit note when the chosen name differs from base, ""
// otherwise. The caller owns batchUsed and must not reuse it across batches.
func (r *Reconciler) Resolve(ctx context.Context, base string, batchUsed map[string]struct{}) (string, string) {
	candidate := base
	for suffix := 0; ; suffix++ {
		if suffix > 0 {
			candidate = base + strconv.Itoa(suffix)
		}
		if r.available(ctx, candidate, batchUsed, suffix >= maxSuffixProbes) {
			if err := r.claims.Claim(ctx, candidate); err != nil {
				r.log.Warn().Err(err).Str("username", candidate).Msg("claim registry write failed")
			}
			note := ""
			if candidate != base {
				note = fmt.Sprintf("username adjusted to '%s' (base '%s' exists)", candidate, base)
			}
			return candidate, note
		}
	}
}

func (r *Reconciler) available(ctx context.Context, candidate string, batchUsed map[string]struct{}, skipRemote bool) bool {
	if _, taken := batchUsed[candidate]; taken {
		return false
	}

	claimed, err := r.claims.Claimed(ctx, candidate)
	if err != nil {
		// A registry we cannot read might hold a claim; assume it does until
		// the probe bound, past it the walk has to terminate somewhere.
		r.log.Warn().Err(err).Str("username", candidate).Msg("claim registry read failed, treating as taken")
		return skipRemote
	}
	if claimed {
		return false
	}

	if skipRemote {
		return true
	}
	return !r.remoteExists(ctx, candidate)
}

// remoteExists probes the directory for a case-insensitive username match.
// A failed probe is treated as a match: assuming a name is free on no evidence
// risks a duplicate-creation attempt, assuming it is taken only costs one
// suffix increment.
func (r *Reconciler) remoteExists(ctx context.Context, username string) bool {
	found, err := r.dir.UsersByField(ctx, "username", []string{username})
	if err != nil {
		r.log.Warn().Err(err).Str("username", username).Msg("username probe failed, treating as taken")
		return true
	}
	for _, u := range found {
		if strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}
