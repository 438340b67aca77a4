package gitread

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ryanmaclean/tundra/internal/security"
)

// stderrScrubber removes bearer tokens and other credentials from git
// stderr before it is wrapped into a returned error. A failed
// authenticated ls-remote can echo the Authorization header back.
var stderrScrubber = security.NewScrubber()

// TokenProvider mints a short-lived bearer token for authenticating
// against a remote (e.g. a GitHub App installation token from
// internal/ghapp). It is optional: remote operations against public
// repositories work with a nil provider.
type TokenProvider func(ctx context.Context) (string, error)

// WithTokenProvider attaches a TokenProvider to an existing Repo handle,
// returning the same handle for chaining at construction time.
func (r *Repo) WithTokenProvider(tp TokenProvider) *Repo {
	r.tokenProvider = tp
	return r
}

// RemoteHeadOID resolves the OID a remote ref currently points at via
// `git ls-remote`, without fetching or otherwise mutating the local
// repository. It stays within the read layer's side-effect-free
// contract while still supporting a remote-aware ahead/behind
// comparison. When a TokenProvider is configured, the request is
// authenticated via a transient `http.extraHeader`, scoped to this one
// invocation only (never persisted into the repo's git config).
func (r *Repo) RemoteHeadOID(ctx context.Context, remote, ref string) (string, error) {
	args := []string{}
	if r.tokenProvider != nil {
		token, err := r.tokenProvider(ctx)
		if err != nil {
			return "", fmt.Errorf("minting remote auth token: %w", err)
		}
		args = append(args, "-c", "http.extraHeader=Authorization: Bearer "+token)
	}
	args = append(args, "ls-remote", remote, ref)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			stderr := stderrScrubber.Scrub(strings.TrimSpace(string(ee.Stderr)))
			return "", fmt.Errorf("git ls-remote %s %s: %w: %s", remote, ref, err, stderr)
		}
		return "", fmt.Errorf("git ls-remote %s %s: %w", remote, ref, err)
	}

	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", fmt.Errorf("git ls-remote %s %s: ref not found", remote, ref)
	}
	fields := strings.Fields(line)
	return fields[0], nil
}

// AheadBehindRemote compares the local ref against a remote ref's
// current OID, resolved live via RemoteHeadOID, then reuses
// AheadBehindCount's local ancestry walk against that OID. The walk
// only succeeds if that OID's commit object already exists in the
// local object database (i.e. a prior fetch brought it in); resolving
// the remote's current tip is a read, but walking its ancestry without
// a local copy of the object would require a fetch, which is out of
// scope for this side-effect-free layer.
func (r *Repo) AheadBehindRemote(ctx context.Context, localRef, remote, remoteRef string) (AheadBehind, error) {
	remoteOID, err := r.RemoteHeadOID(ctx, remote, remoteRef)
	if err != nil {
		return AheadBehind{}, err
	}
	return r.AheadBehindCount(ctx, localRef, remoteOID)
}
