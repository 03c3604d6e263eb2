package collection

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// Storage id constraints, dictated by the underlying index:
// 3-63 chars, leading letter, then letters/digits/underscores/hyphens.
const (
	MinStorageIDLen = 3
	MaxStorageIDLen = 63
)

const (
	// idPrefix is prepended when a sanitized name would not start with a letter.
	idPrefix = "kb_"
	// hashSuffixLen is the number of hex digits appended to disambiguate
	// display names that transliterate to the same prefix.
	hashSuffixLen = 8
)

var (
	storageIDRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{2,62}$`)
	invalidRunes   = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

	// stripMarks removes combining marks after NFKD decomposition, so accented
	// latin letters survive transliteration as their base letters.
	stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// ValidateStorageID checks the storage-safe identifier constraints.
func ValidateStorageID(id string) error {
	if id == "" {
		return fmt.Errorf("storage id is required")
	}
	if len(id) < MinStorageIDLen {
		return fmt.Errorf("storage id too short (min %d)", MinStorageIDLen)
	}
	if len(id) > MaxStorageIDLen {
		return fmt.Errorf("storage id too long (max %d)", MaxStorageIDLen)
	}
	if !storageIDRegex.MatchString(id) {
		return fmt.Errorf("storage id must start with a letter and contain only letters, digits, underscores and hyphens")
	}
	return nil
}

// DeriveStorageID maps an arbitrary display name to a storage-safe identifier.
// Returns the id and whether a conversion took place.
//
// A display name that already satisfies the constraints is used verbatim.
// Otherwise: transliterate to ASCII, strip disallowed runes, truncate to leave
// room for a deterministic hash suffix of the original name, and prefix with
// "kb_" when the result would not start with a letter. The hash suffix keeps
// distinct display names from colliding after transliteration.
func DeriveStorageID(displayName string) (string, bool, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", false, fmt.Errorf("%w: display name is required", domain.ErrInvalidParameter)
	}

	if ValidateStorageID(name) == nil {
		return name, false, nil
	}

	ascii, _, err := transform.String(stripMarks, name)
	if err != nil {
		ascii = "" // fall through to the hash-only form
	}
	ascii = invalidRunes.ReplaceAllString(ascii, "_")
	ascii = strings.Trim(ascii, "_-")

	suffix := nameHash(name)

	var id string
	if ascii == "" {
		id = idPrefix + suffix
	} else {
		maxBase := MaxStorageIDLen - len(suffix) - 1 - len(idPrefix)
		if len(ascii) > maxBase {
			ascii = ascii[:maxBase]
		}
		id = ascii + "_" + suffix
		if !startsWithLetter(id) {
			id = idPrefix + id
		}
	}

	if err := ValidateStorageID(id); err != nil {
		return "", false, fmt.Errorf("%w: derive storage id for %q: %s", domain.ErrInvalidParameter, displayName, err)
	}
	return id, true, nil
}

func nameHash(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:hashSuffixLen]
}

func startsWithLetter(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
