package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// ReceiptAlphabet is the reduced base32 alphabet for anonymous receipt
// codes. I, O, 0 and 1 are excluded to avoid transcription confusion.
// 32^16 ≈ 80 bits of entropy.
const ReceiptAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const receiptLength = 16

// GenerateAccessCode returns a 256-bit opaque access code, base64url
// encoded without padding (43 characters).
func GenerateAccessCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("access code generation: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateReferenceCode returns the human-readable report reference,
// HW-<year>-<4 hex upper>.
func GenerateReferenceCode(year int) (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reference code generation: %w", err)
	}
	return fmt.Sprintf("HW-%d-%02X%02X", year, buf[0], buf[1]), nil
}

// GenerateReceiptCode returns the bare 16-character storage form of a
// receipt code.
func GenerateReceiptCode() (string, error) {
	buf := make([]byte, receiptLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("receipt code generation: %w", err)
	}
	code := make([]byte, receiptLength)
	for i, b := range buf {
		// len(ReceiptAlphabet) == 32 divides 256, so the modulo is unbiased.
		code[i] = ReceiptAlphabet[int(b)%len(ReceiptAlphabet)]
	}
	return string(code), nil
}

// FormatReceiptCode renders the display form XXXX-XXXX-XXXX-XXXX.
func FormatReceiptCode(code string) string {
	if len(code) != receiptLength {
		return code
	}
	return code[0:4] + "-" + code[4:8] + "-" + code[8:12] + "-" + code[12:16]
}

// NormalizeReceiptCode strips hyphens and spaces and uppercases.
// Normalization is idempotent.
func NormalizeReceiptCode(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// ValidateReceiptCode checks length and alphabet of a normalized code.
func ValidateReceiptCode(code string) bool {
	if len(code) != receiptLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(ReceiptAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// CaseNumber builds the case number <SLUG_UPPER[:10]>-<year>-<NNNN>.
func CaseNumber(slug string, year, seq int) string {
	s := strings.ToUpper(slug)
	if len(s) > 10 {
		s = s[:10]
	}
	return fmt.Sprintf("%s-%d-%04d", s, year, seq)
}

// Aktenzeichen builds the anonymous-channel case number AH-<year>-<NNNNNN>.
func Aktenzeichen(year, seq int) string {
	return fmt.Sprintf("AH-%d-%06d", year, seq)
}
