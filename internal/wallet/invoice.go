package wallet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const invoicePrefix = "lnsim1"

// encodeInvoice serializes the amount and payment hash into the invoice
// string handed to payers. Hex never contains 'm', so the separator is
// unambiguous.
func encodeInvoice(amountMsat int64, paymentHash string) string {
	return fmt.Sprintf("%s%dm%s", invoicePrefix, amountMsat, paymentHash)
}

// decodeInvoice parses an invoice produced by encodeInvoice.
func decodeInvoice(invoice string) (int64, string, error) {
	rest, ok := strings.CutPrefix(invoice, invoicePrefix)
	if !ok {
		return 0, "", fmt.Errorf("%w: missing %s prefix", ErrInvalidInvoice, invoicePrefix)
	}

	sep := strings.IndexByte(rest, 'm')
	if sep <= 0 {
		return 0, "", fmt.Errorf("%w: missing amount", ErrInvalidInvoice)
	}

	amountMsat, err := strconv.ParseInt(rest[:sep], 10, 64)
	if err != nil || amountMsat <= 0 {
		return 0, "", fmt.Errorf("%w: bad amount %q", ErrInvalidInvoice, rest[:sep])
	}

	paymentHash := strings.ToLower(rest[sep+1:])
	if !ValidPaymentHash(paymentHash) {
		return 0, "", fmt.Errorf("%w: bad payment hash", ErrInvalidInvoice)
	}

	return amountMsat, paymentHash, nil
}

// newPreimage generates a random 32-byte preimage and its payment hash,
// both hex-encoded.
func newPreimage() (preimage, paymentHash string, err error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(b[:])
	return hex.EncodeToString(b[:]), hex.EncodeToString(sum[:]), nil
}

// ValidPaymentHash reports whether s is a hex-encoded 32-byte hash.
func ValidPaymentHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
