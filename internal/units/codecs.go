package units

import (
	"encoding/ascii85"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/danmuck/binpipe/internal/multibin"
	"github.com/danmuck/binpipe/internal/unit"
)

// Textual codec units. Forward direction decodes, reverse encodes, so that
// `... | b64 | zl | hex` style chains read as a sequence of decodings.

func init() {
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "hex", help: "decode a hexadecimal payload; -R encodes"},
				fwd: plain(func(in []byte) ([]byte, error) {
					return hex.DecodeString(string(multibin.StripSpace(in)))
				}),
			},
			rev: plain(func(in []byte) ([]byte, error) {
				return []byte(strings.ToUpper(hex.EncodeToString(in))), nil
			}),
		}
	})
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "b64", help: "decode a base64 payload; -R encodes"},
				fwd:  plain(multibin.DecodeBase64),
			},
			rev: plain(func(in []byte) ([]byte, error) {
				return []byte(base64.StdEncoding.EncodeToString(in)), nil
			}),
		}
	})
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "b85", help: "decode an ascii85 payload; -R encodes"},
				fwd: plain(func(in []byte) ([]byte, error) {
					dec := make([]byte, len(in))
					n, _, err := ascii85.Decode(dec, multibin.StripSpace(in), true)
					if err != nil {
						return nil, err
					}
					return dec[:n], nil
				}),
			},
			rev: plain(func(in []byte) ([]byte, error) {
				out := make([]byte, ascii85.MaxEncodedLen(len(in)))
				n := ascii85.Encode(out, in)
				return out[:n], nil
			}),
		}
	})
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "url", help: "decode percent-encoding; -R encodes"},
				fwd:  plain(multibin.DecodeURL),
			},
			rev: plain(encodeURL),
		}
	})
	Register(func() unit.Unit {
		return &reversible{
			transform: transform{
				base: base{name: "esc", help: "process C-style escapes; -R escapes"},
				fwd:  plain(multibin.Unescape),
			},
			rev: plain(escape),
		}
	})
}

func encodeURL(in []byte) ([]byte, error) {
	const hexdig = "0123456789ABCDEF"
	var out []byte
	for _, b := range in {
		unreserved := b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' ||
			b >= '0' && b <= '9' || b == '-' || b == '_' || b == '.' || b == '~'
		if unreserved {
			out = append(out, b)
			continue
		}
		out = append(out, '%', hexdig[b>>4], hexdig[b&0x0F])
	}
	return out, nil
}

func escape(in []byte) ([]byte, error) {
	const hexdig = "0123456789abcdef"
	var out []byte
	for _, b := range in {
		switch b {
		case '\n':
			out = append(out, '\\', 'n')
		case '\t':
			out = append(out, '\\', 't')
		case '\r':
			out = append(out, '\\', 'r')
		case '\\':
			out = append(out, '\\', '\\')
		default:
			if b < 0x20 || b >= 0x7F {
				out = append(out, '\\', 'x', hexdig[b>>4], hexdig[b&0x0F])
			} else {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
