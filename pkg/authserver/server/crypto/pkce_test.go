package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPKCERoundTrip(t *testing.T) {
	t.Parallel()

	verifier := GeneratePKCEVerifier()
	require.Len(t, verifier, 43, "32 bytes base64url encoded")

	challenge := ComputePKCEChallenge(verifier)
	assert.True(t, VerifyPKCE(verifier, challenge))
	assert.False(t, VerifyPKCE(verifier+"x", challenge))
	assert.False(t, VerifyPKCE(GeneratePKCEVerifier(), challenge))
}

func TestComputePKCEChallengeKnownVector(t *testing.T) {
	t.Parallel()

	// RFC 7636 Appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ComputePKCEChallenge(verifier))
}

func TestGenerateAuthCode(t *testing.T) {
	t.Parallel()

	a, err := GenerateAuthCode()
	require.NoError(t, err)
	b, err := GenerateAuthCode()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43, "32 bytes base64url without padding")
	assert.NotContains(t, a, "=")
}
