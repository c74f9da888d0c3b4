package stdlib

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerCrypto installs AES-CBC encryption, the SHA/MD5 digests and
// base64 helpers. Arguments come from the Handle, results go out via
// push, failures become ArgumentError.
func registerCrypto(m *runtime.Manager) {
	register(m, "crypto.aes_encrypt", aesEncrypt)
	register(m, "crypto.aes_decrypt", aesDecrypt)
	register(m, "crypto.aes_generate_key", aesGenerateKey)
	register(m, "crypto.sha256", cryptoSHA256)
	register(m, "crypto.sha512", cryptoSHA512)
	register(m, "crypto.md5", cryptoMD5)
	register(m, "crypto.base64_encode", base64Encode)
	register(m, "crypto.base64_decode", base64Decode)
}

func aesEncrypt(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	key, err := argString(h, 1)
	if err != nil {
		return err
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return runtime.ArgumentError("AES key must be 32 bytes, got %d", len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return runtime.ArgumentError("failed to create cipher: %v", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return runtime.ArgumentError("failed to generate IV: %v", err)
	}

	plaintext := []byte(data)
	padding := aes.BlockSize - (len(plaintext) % aes.BlockSize)
	padded := make([]byte, len(plaintext)+padding)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padding)
	}

	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	result := append(iv, ciphertext...)
	return pushString(h, base64.StdEncoding.EncodeToString(result))
}

func aesDecrypt(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	key, err := argString(h, 1)
	if err != nil {
		return err
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return runtime.ArgumentError("AES key must be 32 bytes, got %d", len(keyBytes))
	}

	encrypted, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return runtime.ArgumentError("failed to decode base64: %v", err)
	}
	if len(encrypted) < aes.BlockSize {
		return runtime.ArgumentError("ciphertext too short")
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return runtime.ArgumentError("failed to create cipher: %v", err)
	}

	iv := encrypted[:aes.BlockSize]
	ciphertext := encrypted[aes.BlockSize:]

	mode := cipher.NewCBCDecrypter(block, iv)
	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	padding := int(plaintext[len(plaintext)-1])
	if padding > len(plaintext) || padding > aes.BlockSize {
		return runtime.ArgumentError("invalid padding")
	}
	plaintext = plaintext[:len(plaintext)-padding]

	return pushString(h, string(plaintext))
}

func aesGenerateKey(h value.Handle) error {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return runtime.ArgumentError("failed to generate key: %v", err)
	}
	return pushString(h, base64.StdEncoding.EncodeToString(key))
}

func cryptoSHA256(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	sum := sha256.Sum256([]byte(data))
	return pushString(h, fmt.Sprintf("%x", sum))
}

func cryptoSHA512(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	sum := sha512.Sum512([]byte(data))
	return pushString(h, fmt.Sprintf("%x", sum))
}

func cryptoMD5(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	sum := md5.Sum([]byte(data))
	return pushString(h, fmt.Sprintf("%x", sum))
}

func base64Encode(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	return pushString(h, base64.StdEncoding.EncodeToString([]byte(data)))
}

func base64Decode(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return runtime.ArgumentError("failed to decode base64: %v", err)
	}
	return pushString(h, string(decoded))
}
