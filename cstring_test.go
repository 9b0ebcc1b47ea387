package pmcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCString(t *testing.T) {
	testCases := []struct {
		name string
		buf  []byte
		want string
	}{
		{"terminated with trailing garbage", append([]byte("192.168.1.100\x00"), 0xde, 0xad, 'x'), "192.168.1.100"},
		{"fixed size buffer padded with zeros", append([]byte("TCP"), make([]byte, 13)...), "TCP"},
		{"no terminator", []byte("203.0.113.7"), "203.0.113.7"},
		{"leading zero", []byte{0, 'a', 'b'}, ""},
		{"empty", nil, ""},
		{"utf8 prefix", []byte("caf\xc3\xa9\x00junk"), "café"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cString(tc.buf))
		})
	}
}

func TestTrimNUL(t *testing.T) {
	assert.Equal(t, "urn:schemas-upnp-org:service:WANIPConnection:1",
		trimNUL("urn:schemas-upnp-org:service:WANIPConnection:1\x00\x00garbage"))
	assert.Equal(t, "10.0.0.2", trimNUL("10.0.0.2"))
}
