package units

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/danmuck/binpipe/internal/chunk"
	"github.com/danmuck/binpipe/internal/unit"
)

var (
	ErrBadPadding = errors.New("units: bad pkcs7 padding")
	ErrBadKeySize = errors.New("units: aes key must be 16, 24, or 32 bytes")
)

// aesUnit decrypts AES in the forward direction and encrypts with -R. The
// key is the positional multibin argument; CBC (the default) takes the
// initialization vector from --iv, evaluated per chunk so that handlers
// like `cut::16` can strip it off the payload.
type aesUnit struct {
	base
	mode  string
	ivRaw string
	key   unit.Arg
	iv    unit.Arg
}

func init() {
	Register(func() unit.Unit {
		return &aesUnit{base: base{
			name: "aes",
			help: "AES decrypt the payload with the given key; -R encrypts",
		}}
	})
}

func (u *aesUnit) Flags(fs *pflag.FlagSet) {
	fs.StringVar(&u.mode, "mode", "cbc", "block mode: cbc or ecb")
	fs.StringVar(&u.ivRaw, "iv", "", "initialization vector (multibin)")
}

func (u *aesUnit) Configure(ctx *unit.ConfigContext, args []string) error {
	if len(args) != 1 {
		return unit.Argumentf("aes takes exactly one key argument")
	}
	key, err := unit.ParseArg(ctx, args[0])
	if err != nil {
		return err
	}
	u.key = key
	switch strings.ToLower(u.mode) {
	case "cbc", "ecb":
		u.mode = strings.ToLower(u.mode)
	default:
		return unit.Argumentf("aes mode %q is not supported", u.mode)
	}
	if u.ivRaw != "" {
		iv, err := unit.ParseArg(ctx, u.ivRaw)
		if err != nil {
			return err
		}
		u.iv = iv
	}
	return nil
}

func (u *aesUnit) block(ctx *unit.Context) (cipher.Block, error) {
	key, err := u.key.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: got %d", ErrBadKeySize, len(key))
	}
	return aes.NewCipher(key)
}

func (u *aesUnit) vector(ctx *unit.Context) ([]byte, error) {
	if !u.iv.Bound() {
		return make([]byte, aes.BlockSize), nil
	}
	iv, err := u.iv.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	if len(iv) < aes.BlockSize {
		return nil, fmt.Errorf("units: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return iv[:aes.BlockSize], nil
}

func (u *aesUnit) Process(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	block, err := u.block(ctx)
	if err != nil {
		return err
	}
	// The IV evaluates after the key but before the ciphertext is read, so
	// a `cut` in --iv mutates c.Data first.
	iv, err := u.vector(ctx)
	if err != nil {
		return err
	}
	data := c.Data
	if len(data)%aes.BlockSize != 0 {
		return fmt.Errorf("units: ciphertext length %d is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	switch u.mode {
	case "cbc":
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	case "ecb":
		for i := 0; i < len(data); i += aes.BlockSize {
			block.Decrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
		}
	}
	out, err = unpadPKCS7(out)
	if err != nil {
		return err
	}
	return emit(c.Derive(out))
}

func (u *aesUnit) Reverse(ctx *unit.Context, c *chunk.Chunk, emit unit.Sink) error {
	block, err := u.block(ctx)
	if err != nil {
		return err
	}
	iv, err := u.vector(ctx)
	if err != nil {
		return err
	}
	data := padPKCS7(c.Data)
	out := make([]byte, len(data))
	switch u.mode {
	case "cbc":
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	case "ecb":
		for i := 0; i < len(data); i += aes.BlockSize {
			block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
		}
	}
	return emit(c.Derive(out))
}

func padPKCS7(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
