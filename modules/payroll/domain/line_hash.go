package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LineHash fingerprints the normalized content of an imported row. Two rows
// with the same employee and amounts hash identically regardless of
// surrounding whitespace or letter case.
func LineHash(employeeCode, employeeName, costCenter string, amounts Components) string {
	parts := []string{
		strings.ToUpper(strings.TrimSpace(employeeCode)),
		strings.ToLower(strings.Join(strings.Fields(employeeName), " ")),
		strings.ToUpper(strings.TrimSpace(costCenter)),
	}
	for _, v := range amounts.Values() {
		parts = append(parts, v.String())
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
