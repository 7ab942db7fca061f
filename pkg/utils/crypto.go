package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// aesGCM 校验密钥并构造GCM实例, 仅接受32字节密钥
func aesGCM(key string) (cipher.AEAD, error) {
	if key == "" {
		return nil, fmt.Errorf("未配置 AES Key")
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("AES Key 长度必须为32字节")
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptSecret 使用 AES-256-GCM 对敏感信息加密
// 密文格式: base64(nonce || ciphertext)
func EncryptSecret(key, plaintext string) (string, error) {
	gcm, err := aesGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret 使用 AES-256-GCM 解密敏感信息
func DecryptSecret(key, ciphertext string) (string, error) {
	gcm, err := aesGCM(key)
	if err != nil {
		return "", err
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(decoded) < gcm.NonceSize() {
		return "", fmt.Errorf("密文长度非法")
	}

	nonce := decoded[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, decoded[gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
