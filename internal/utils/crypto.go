package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// encPrefix 标记 EncryptAESGCM 产生的密文，便于区分历史明文数据。
const encPrefix = "enc:v1:"

// RandString 生成长度为 n 字节的随机字节，并以 base64url 编码为 URL 安全的字符串（无填充）。
func RandString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandURLSafeString 生成长度为 n 的 URL 安全随机字符串（字符集 [A-Za-z0-9-_]）。
func RandURLSafeString(n int) (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	const mask = 63
	if n <= 0 {
		return "", nil
	}
	out := make([]byte, n)
	buf := make([]byte, n)
	i := 0
	for i < n {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			out[i] = alphabet[int(b&mask)]
			i++
			if i >= n {
				break
			}
		}
	}
	return string(out), nil
}

func gcmFor(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptAESGCM 使用由 key 派生的 AES-256-GCM 加密 plain，输出 "enc:v1:" + base64url(nonce||密文)。
func EncryptAESGCM(key string, plain []byte) (string, error) {
	if key == "" {
		return "", errors.New("empty encryption key")
	}
	aead, err := gcmFor(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return encPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptAESGCM 为 EncryptAESGCM 的逆操作。
func DecryptAESGCM(key, enc string) ([]byte, error) {
	if !IsEncrypted(enc) {
		return nil, errors.New("value is not encrypted")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(enc, encPrefix))
	if err != nil {
		return nil, err
	}
	aead, err := gcmFor(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, nil)
}

// IsEncrypted 判断字符串是否带有密文前缀。
func IsEncrypted(s string) bool { return strings.HasPrefix(s, encPrefix) }
