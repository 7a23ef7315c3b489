package security

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TOTP generates and checks RFC 6238 one-time codes. SHA-1, 6 digits and a
// 30 second period is what every mainstream authenticator app ships with.
type TOTP struct {
	Issuer string
	Period int
	Digits int
	// Skew is how many periods either side of now still validate, absorbing
	// clock drift between the server and the authenticator device.
	Skew int
}

func NewTOTP(issuer string) *TOTP {
	return &TOTP{Issuer: issuer, Period: 30, Digits: 6, Skew: 1}
}

// ProvisionURI renders the otpauth:// URI that authenticator apps scan.
func (t *TOTP) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(t.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", t.Issuer)
	v.Set("period", strconv.Itoa(t.Period))
	v.Set("digits", strconv.Itoa(t.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the secret at now, scanning the skew window.
// Comparison is constant time per candidate counter.
func (t *TOTP) Verify(secretBase32, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != t.Digits || !isDigits(trimmed) {
		return false, nil
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		return false, err
	}
	if len(secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	baseCounter := now.Unix() / int64(t.Period)
	for step := -t.Skew; step <= t.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter, t.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
