// Package dedup rejects product calls that attest the same account twice.
package dedup

import "github.com/coachpo/assetproof/errs"

// Check fails with DuplicateAccount on the first key seen twice.
func Check(keys []string) error {
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			return errs.New(errs.CodeDuplicateAccount, errs.WithMessage("duplicate account "+key))
		}
		seen[key] = struct{}{}
	}
	return nil
}
