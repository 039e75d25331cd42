package crypto

import (
	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/session"
)

// ExecCrypt decrypts ciphertext under key/aad, but first requires an
// interactive session to be proven when accessibility demands user
// presence (§4.4/§5): the caller must already hold a challenge issued by
// session.Table.Create and must present the matching token back here.
// Authorize succeeds only if token is the one minted alongside challenge
// (§4.4/§4.11); on mismatch this returns AccessDenied and leaves the
// session untouched so the client can retry (§4.11). Authorize removes a
// session only when it has expired; ExecCrypt removes none itself.
//
// When challenge is nil, the caller is asserting the access does not
// require interactive proof (e.g. a DeviceFirstUnlocked secret read after
// boot); it is the pipeline's job (C7) to have already checked that
// against the row's accessibility/auth-type before calling in.
func ExecCrypt(table *session.Table, caller session.Caller, conditionFingerprint string, challenge, token []byte, key, ciphertext, aad []byte) ([]byte, error) {
	if challenge != nil {
		if err := table.Authorize(challenge, caller, conditionFingerprint, token); err != nil {
			return nil, err
		}
	}

	plaintext, err := Open(key, ciphertext, aad)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "interactive decrypt failed")
	}
	return plaintext, nil
}
