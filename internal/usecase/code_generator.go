package usecase

import (
	"crypto/rand"
	"io"
)

// codeAlphabet avoids ambiguous characters like O/0 and I/1 so codes stay
// typeable from across a room. 32 symbols divide 256 evenly, so the modulo
// draw below is exactly uniform.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// maxGenerateAttempts bounds collision re-rolls at issuance. With 32^6
// possible codes a collision is already vanishingly rare; hitting the bound
// means the keyspace is exhausted or the generator is broken.
const maxGenerateAttempts = 5

// generatePairingCode draws length characters independently and uniformly
// from codeAlphabet using crypto/rand.
func generatePairingCode(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}
	for i := 0; i < length; i++ {
		buffer[i] = codeAlphabet[int(buffer[i])%len(codeAlphabet)]
	}
	return string(buffer), nil
}
