package datasource

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
)

var metaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([A-Za-z0-9_\-]+)`)

// DecodeBody converts a response body to UTF-8. The charset comes from the
// Content-Type header, then a <meta> tag; undeclared bodies that are not
// valid UTF-8 are tried as Shift_JIS and then EUC-JP.
func DecodeBody(raw []byte, contentType string) (string, error) {
	charset := charsetFromContentType(contentType)
	if charset == "" {
		if m := metaCharset.FindSubmatch(raw[:min(len(raw), 2048)]); m != nil {
			charset = strings.ToLower(string(m[1]))
		}
	}

	if enc := japaneseEncoding(charset); enc != nil {
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s body: %w", charset, err)
		}
		return string(out), nil
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}
	for _, enc := range []encoding.Encoding{japanese.ShiftJIS, japanese.EUCJP} {
		if out, err := enc.NewDecoder().Bytes(raw); err == nil && utf8.Valid(out) && !bytes.ContainsRune(out, utf8.RuneError) {
			return string(out), nil
		}
	}
	return string(bytes.ToValidUTF8(raw, []byte("�"))), nil
}

func charsetFromContentType(ct string) string {
	for _, part := range strings.Split(ct, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), "charset=") {
			return strings.ToLower(strings.Trim(part[len("charset="):], `"'`))
		}
	}
	return ""
}

func japaneseEncoding(charset string) encoding.Encoding {
	switch charset {
	case "shift_jis", "shift-jis", "sjis", "x-sjis", "windows-31j", "cp932", "ms932":
		return japanese.ShiftJIS
	case "euc-jp", "eucjp", "x-euc-jp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	}
	return nil
}
