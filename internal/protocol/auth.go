package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/Adi8712/janus/internal/codec"
)

// challengeSize is the number of random bytes the server issues as its
// auth challenge, comfortably above spec.md's 128-bit floor.
const challengeSize = 32

// WorkspaceKeyLookup resolves a workspace name to its shared AES key.
// A nil key (ok still true) means the workspace exists but carries no
// key, so the challenge travels in cleartext. ok=false means the
// workspace is unknown; the server still runs the full challenge dance
// to avoid leaking that fact through timing or an early close.
type WorkspaceKeyLookup func(workspaceName string) (key []byte, ok bool)

// ClientAuth runs the client side of the auth handshake: announce the
// workspace name, receive a challenge, encrypt it under key (or echo it
// back verbatim if key is nil), and wait for the server's verdict.
func (c *Connection) ClientAuth(workspaceName string, key []byte) error {
	if err := c.sendAuth([]byte(workspaceName)); err != nil {
		return err
	}

	m, err := c.expectType(codec.TypeAuth)
	if err != nil {
		return err
	}
	challengeMsg := m.(*codec.Auth)
	challenge := append([]byte(nil), challengeMsg.Payload...)
	codec.Release(challengeMsg)

	var response []byte
	if key == nil {
		response = challenge
	} else {
		response, err = encryptChallenge(key, challenge)
		if err != nil {
			return Fatal(ErrAuthentication, err)
		}
	}
	if err := c.sendAuth(response); err != nil {
		return err
	}

	m, err = c.expectType(codec.TypeCommonResponse)
	if err != nil {
		return err
	}
	resp := m.(*codec.CommonResponse)
	code, msg := resp.Code, resp.Msg
	codec.Release(resp)
	if code != codec.CommonResponseCodeSuccess {
		return Fatalf(ErrAuthentication, "auth rejected: %s", msg)
	}

	c.WorkspaceName = workspaceName
	c.setState(StateAuthDone)
	return nil
}

// sendAuth sends an Auth carrying payload, borrowing the message from
// codec's pool.
func (c *Connection) sendAuth(payload []byte) error {
	a := codec.GetAuth()
	a.Payload = append(a.Payload, payload...)
	err := c.Send(a)
	codec.Release(a)
	return err
}

// ServerAuth runs the server side: receive the claimed workspace name,
// issue a challenge, and verify the response against lookup's key for
// that workspace.
func (c *Connection) ServerAuth(lookup WorkspaceKeyLookup) error {
	m, err := c.expectType(codec.TypeAuth)
	if err != nil {
		return err
	}
	nameMsg := m.(*codec.Auth)
	workspaceName := string(nameMsg.Payload)
	codec.Release(nameMsg)

	challenge := make([]byte, challengeSize)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		return Fatal(ErrAuthentication, fmt.Errorf("generate challenge: %w", err))
	}
	if err := c.sendAuth(challenge); err != nil {
		return err
	}

	m, err = c.expectType(codec.TypeAuth)
	if err != nil {
		return err
	}
	responseMsg := m.(*codec.Auth)
	// verifyResponse runs before Release: response aliases responseMsg's
	// backing array, and a pooled Auth reused by the next decode would
	// overwrite it mid-check.
	key, known := lookup(workspaceName)
	ok := known && verifyResponse(key, challenge, responseMsg.Payload)
	codec.Release(responseMsg)

	if !ok {
		c.replyCommonResponse(codec.CommonResponseCodeFailure, "authentication failed", nil)
		return Fatalf(ErrAuthentication, "auth failed for workspace %q", workspaceName)
	}

	if err := c.replyCommonResponse(codec.CommonResponseCodeSuccess, "", nil); err != nil {
		return err
	}
	c.WorkspaceName = workspaceName
	c.setState(StateAuthDone)
	return nil
}

// replyCommonResponse sends a CommonResponse, borrowing the message from
// codec's pool.
func (c *Connection) replyCommonResponse(code int32, msg string, data []byte) error {
	r := codec.GetCommonResponse()
	r.Code = code
	r.Msg = msg
	r.Data = append(r.Data, data...)
	err := c.Send(r)
	codec.Release(r)
	return err
}

func verifyResponse(key, challenge, response []byte) bool {
	if key == nil {
		return subtle.ConstantTimeCompare(challenge, response) == 1
	}
	decrypted, err := decryptChallenge(key, response)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(challenge, decrypted) == 1
}

// encryptChallenge encrypts plaintext under key with AES-CBC/PKCS#7, a
// random IV prepended to the ciphertext.
func encryptChallenge(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("protocol: aes key: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("protocol: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return append(iv, ciphertext...), nil
}

// decryptChallenge reverses encryptChallenge: the first block of
// ciphertext is the IV.
func decryptChallenge(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("protocol: aes key: %w", err)
	}
	blockSize := block.BlockSize()
	if len(ciphertext) < blockSize || (len(ciphertext)-blockSize)%blockSize != 0 {
		return nil, fmt.Errorf("protocol: ciphertext length %d invalid for block size %d", len(ciphertext), blockSize)
	}

	iv, body := ciphertext[:blockSize], ciphertext[blockSize:]
	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, body)

	return pkcs7Unpad(plaintext, blockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("protocol: pkcs7 unpad: invalid length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("protocol: pkcs7 unpad: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("protocol: pkcs7 unpad: corrupt padding")
		}
	}
	return data[:len(data)-padLen], nil
}
