package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Session is the persisted login state of the chat client.
type Session struct {
	APIURL      string `json:"api_url"`
	HubURL      string `json:"hub_url"`
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ConfigDir returns the per-profile config directory.
func ConfigDir(profileName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "coursechat", profileName)
}

// encryptionKey derives a stable key from the machine identity so the
// session file is useless when copied to another host.
func encryptionKey() []byte {
	paths := []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	var id string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}
	if id == "" {
		hostname, _ := os.Hostname()
		id = hostname
	}
	return pbkdf2.Key([]byte(id), []byte("coursechat-session"), 4096, 32, sha256.New)
}

func encrypt(data []byte) (string, error) {
	block, err := aes.NewCipher(encryptionKey())
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(encryptionKey())
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Load reads the stored session for a profile, or nil if none exists or
// it cannot be decrypted on this machine.
func Load(profileName string) *Session {
	dir := ConfigDir(profileName)
	if dir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(dir, "session.json"))
	if err != nil {
		return nil
	}
	decrypted, err := decrypt(string(data))
	if err != nil {
		return nil
	}
	var s Session
	if err := json.Unmarshal(decrypted, &s); err != nil {
		return nil
	}
	return &s
}

// Save persists the session encrypted under the profile directory.
func Save(profileName string, s Session) error {
	dir := ConfigDir(profileName)
	if dir == "" {
		return fmt.Errorf("could not get config directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "session.json"), []byte(encrypted), 0600)
}

// Clear removes the stored session for a profile.
func Clear(profileName string) {
	dir := ConfigDir(profileName)
	if dir != "" {
		os.Remove(filepath.Join(dir, "session.json"))
	}
}
