package crypto

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessCode(t *testing.T) {
	code, err := GenerateAccessCode()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(code), 43)
	assert.NotContains(t, code, "=")
	assert.NotContains(t, code, "+")
	assert.NotContains(t, code, "/")
}

func TestGenerateReferenceCode(t *testing.T) {
	code, err := GenerateReferenceCode(2026)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^HW-2026-[A-F0-9]{4}$`), code)
}

func TestGenerateReceiptCode(t *testing.T) {
	code, err := GenerateReceiptCode()
	require.NoError(t, err)
	require.Len(t, code, 16)
	for _, c := range code {
		assert.Contains(t, ReceiptAlphabet, string(c))
	}
	assert.True(t, ValidateReceiptCode(code))
}

func TestFormatReceiptCode(t *testing.T) {
	assert.Equal(t, "XKBV-3MWN-A5QR-ZTP8", FormatReceiptCode("XKBV3MWNA5QRZTP8"))
	// Unexpected length passes through untouched.
	assert.Equal(t, "ABC", FormatReceiptCode("ABC"))
}

func TestNormalizeReceiptCode(t *testing.T) {
	norm := NormalizeReceiptCode("xkbv-3mwn-a5qr-ztp8")
	assert.Equal(t, "XKBV3MWNA5QRZTP8", norm)

	// Idempotent.
	assert.Equal(t, norm, NormalizeReceiptCode(norm))

	assert.Equal(t, "XKBV3MWN", NormalizeReceiptCode(" xkbv 3mwn "))
}

func TestValidateReceiptCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"valid", "XKBV3MWNA5QRZTP8", true},
		{"contains O", "XKBV3MWNA5QRZTPO", false},
		{"contains 0", "XKBV3MWNA5QRZTP0", false},
		{"contains 1", "XKBV3MWNA5QRZTP1", false},
		{"contains I", "IKBV3MWNA5QRZTP8", false},
		{"too short", "XKBV3MWN", false},
		{"too long", "XKBV3MWNA5QRZTP8A", false},
		{"lowercase", "xkbv3mwna5qrztp8", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateReceiptCode(tt.code))
		})
	}
}

func TestCaseNumber(t *testing.T) {
	assert.Equal(t, "ACME-2026-0042", CaseNumber("acme", 2026, 42))
	// Slug truncated to 10 characters.
	assert.Equal(t, "MUSTERFIRM-2026-0001", CaseNumber("musterfirma-gmbh", 2026, 1))
}

func TestAktenzeichen(t *testing.T) {
	az := Aktenzeichen(2026, 17)
	assert.Equal(t, "AH-2026-000017", az)
	assert.True(t, strings.HasPrefix(az, "AH-"))
}
