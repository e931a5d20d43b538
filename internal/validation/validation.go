// Package validation normalises and checks chain identifiers received from
// API callers and tool invocations.
package validation

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidTxHash  = errors.New("invalid transaction hash")
)

var txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress reports whether addr is a 0x-prefixed 20-byte hex address.
func IsValidEthAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// IsValidTxHash reports whether h is a 0x-prefixed 32-byte hex hash.
func IsValidTxHash(h string) bool {
	return txHashRegex.MatchString(strings.TrimSpace(h))
}

// NormalizeAddress trims, validates and lowercases an address so it can be
// used as a session or progress key.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}
	if !IsValidEthAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

// NormalizeTxHash trims, validates and lowercases a transaction hash.
func NormalizeTxHash(h string) (string, error) {
	h = strings.TrimSpace(h)
	if !IsValidTxHash(h) {
		return "", ErrInvalidTxHash
	}
	return strings.ToLower(h), nil
}
