package convert

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// SourceExtension is the only accepted source file extension.
const SourceExtension = ".xlsm"

// ValidateSourceReference checks that ref names a fetchable macro-enabled
// workbook. The extension check applies to the path component only; query
// parameters (for example a SAS token) are ignored.
func ValidateSourceReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return newError(KindMalformedRequest, "validate", errors.New("source reference is empty"))
	}
	u, err := url.Parse(ref)
	if err != nil {
		return newError(KindMalformedRequest, "validate", err)
	}
	p := u.Path
	if p == "" {
		// A bare storage path with no scheme parses entirely into Opaque.
		p = u.Opaque
	}
	if !strings.HasSuffix(strings.ToLower(p), SourceExtension) {
		return newError(KindUnsupportedSourceType, "validate",
			errors.New("source reference must end with "+SourceExtension))
	}
	return nil
}

// SourceBaseName derives the output base name from the reference: last path
// segment, percent-decoded, source extension stripped.
func SourceBaseName(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	if ext := path.Ext(base); strings.EqualFold(ext, SourceExtension) {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
