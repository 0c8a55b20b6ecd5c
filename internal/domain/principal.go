package domain

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"
)

// AnonymousPrincipal is the reserved textual identity meaning "no identity".
// It is rejected wherever a concrete destination or ledger is required.
const AnonymousPrincipal Principal = "2vxsx-fae"

const (
	principalChecksumLen = 4
	principalMaxBytes    = 29
)

// principalPattern matches the canonical grouping: five character groups of
// lowercase base32 joined by dashes, the last group one to five characters.
var principalPattern = regexp.MustCompile(`^([a-z2-7]{5}-)*[a-z2-7]{1,5}$`)

// principalToken finds candidate principals inside free text. A run of
// identifier characters is one token, so a principal embedded in a longer run
// never matches on its own.
var principalToken = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9-]*`)

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is an opaque, globally unique identifier for a ledger-held account
// or a ledger service. Adheres to the Account Reference / Ledger Reference
// data model: owner identity only, no sub-account distinction.
type Principal string

// String returns the textual form of the principal
func (p Principal) String() string {
	return string(p)
}

// IsAnonymous reports whether p is the anonymous sentinel (or empty)
func (p Principal) IsAnonymous() bool {
	return p == "" || p == AnonymousPrincipal
}

// Validate ensures the principal is in canonical textual form: the base32
// encoding of a big-endian CRC32 of the raw bytes followed by the bytes
// themselves, grouped in fives.
func (p Principal) Validate() error {
	s := string(p)
	if !principalPattern.MatchString(s) {
		return fmt.Errorf("principal %q is not well-formed", s)
	}

	raw, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(s, "-", "")))
	if err != nil || len(raw) < principalChecksumLen || len(raw)-principalChecksumLen > principalMaxBytes {
		return fmt.Errorf("principal %q is not well-formed", s)
	}

	body := raw[principalChecksumLen:]
	if binary.BigEndian.Uint32(raw[:principalChecksumLen]) != crc32.ChecksumIEEE(body) {
		return fmt.Errorf("principal %q has an invalid checksum", s)
	}
	if encodePrincipal(raw) != s {
		return fmt.Errorf("principal %q is not in canonical form", s)
	}
	return nil
}

// PrincipalsIn returns every well-formed principal that appears as a whole
// token in text, in order of appearance.
func PrincipalsIn(text string) []Principal {
	var found []Principal
	for _, token := range principalToken.FindAllString(text, -1) {
		if p := Principal(token); p.Validate() == nil {
			found = append(found, p)
		}
	}
	return found
}

func encodePrincipal(raw []byte) string {
	encoded := strings.ToLower(principalEncoding.EncodeToString(raw))

	var b strings.Builder
	for i := 0; i < len(encoded); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(encoded[i:min(i+5, len(encoded))])
	}
	return b.String()
}
