package pandit

import "context"

// Approve marks a pending pandit as verified so they appear in search.
// Returns ErrAlreadyVerified if the pandit was verified before.
func Approve(ctx context.Context, repo Repository, id string) (*Pandit, error) {
	p, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Verified {
		return nil, ErrAlreadyVerified
	}
	if err := repo.SetVerified(ctx, id, true); err != nil {
		return nil, err
	}
	p.Verified = true
	return p, nil
}

// Reject keeps the pandit account but leaves it unverified, removing it
// from search if it had been approved earlier.
func Reject(ctx context.Context, repo Repository, id string) (*Pandit, error) {
	p, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Verified {
		if err := repo.SetVerified(ctx, id, false); err != nil {
			return nil, err
		}
		p.Verified = false
	}
	return p, nil
}
