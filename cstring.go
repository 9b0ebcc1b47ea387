package pmcheck

import "bytes"

// cString decodes a zero-terminated string. Only the bytes before the first
// NUL are kept; a buffer without a NUL is used whole.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// trimNUL applies the cString rule to a string received from a gateway.
// Some IGDs pad SOAP string values with NUL bytes and trailing junk.
func trimNUL(s string) string {
	return cString([]byte(s))
}
