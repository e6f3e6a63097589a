// Package keyring provides secure storage for session cookies.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "campus-vpn"

	// Parameters for deriving the local-fallback encryption key.
	keySalt       = "campus-vpn-credential-store"
	keyIterations = 4096
)

// Common errors returned by keyring operations.
var (
	ErrNotFound    = errors.New("credential not found")
	ErrAccess      = errors.New("keyring access denied")
	ErrUnavailable = errors.New("keyring service unavailable")
)

// Storage backend state
var (
	useLocalStorage bool
	localStoreMu    sync.RWMutex
	localStore      map[string]string
	localStoreFile  string
	encryptionKey   []byte
	storageOnce     sync.Once
)

// ensureStorage picks a backend on first use. Lazy initialization lets
// tests install a mock keyring before anything touches the real one.
func ensureStorage() {
	storageOnce.Do(func() {
		// Try system keyring first
		testKey := "campus-vpn-test-init"
		err := keyring.Set(serviceName, testKey, "test")
		if err == nil {
			keyring.Delete(serviceName, testKey)
			useLocalStorage = false
		} else {
			useLocalStorage = true
			initLocalStorage()
		}
	})
}

func initLocalStorage() {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".config", "campus-vpn")
	os.MkdirAll(configDir, 0700)
	localStoreFile = filepath.Join(configDir, ".credentials")

	// Derive the encryption key from machine-specific data. The key never
	// leaves this host, so a lost laptop still needs the machine identity
	// to read the store.
	hostname, _ := os.Hostname()
	machineID := getMachineID()
	keyData := fmt.Sprintf("campus-vpn-%s-%s-%d", hostname, machineID, os.Getuid())
	encryptionKey = pbkdf2.Key([]byte(keyData), []byte(keySalt), keyIterations, 32, sha256.New)

	// Load existing credentials
	localStore = make(map[string]string)
	loadLocalStore()
}

func getMachineID() string {
	// Try to read machine-id
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	// Fallback
	return "default-machine-id"
}

func loadLocalStore() {
	data, err := os.ReadFile(localStoreFile)
	if err != nil {
		return
	}

	decrypted, err := decrypt(data)
	if err != nil {
		return
	}

	json.Unmarshal(decrypted, &localStore)
}

func saveLocalStore() error {
	localStoreMu.RLock()
	data, err := json.Marshal(localStore)
	localStoreMu.RUnlock()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(localStoreFile, encrypted, 0600)
}

func encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Store saves a secret under the given key.
func Store(key string, secret string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if secret == "" {
		return errors.New("secret cannot be empty")
	}

	ensureStorage()

	if useLocalStorage {
		localStoreMu.Lock()
		localStore[key] = secret
		localStoreMu.Unlock()
		return saveLocalStore()
	}

	if err := keyring.Set(serviceName, key, secret); err != nil {
		// Fallback to local storage
		useLocalStorage = true
		initLocalStorage()
		localStoreMu.Lock()
		localStore[key] = secret
		localStoreMu.Unlock()
		return saveLocalStore()
	}
	return nil
}

// Get retrieves a secret stored under the given key.
func Get(key string) (string, error) {
	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	ensureStorage()

	if useLocalStorage {
		localStoreMu.RLock()
		secret, exists := localStore[key]
		localStoreMu.RUnlock()
		if !exists {
			return "", ErrNotFound
		}
		return secret, nil
	}

	secret, err := keyring.Get(serviceName, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotFound
		}
		// Try local storage as fallback
		localStoreMu.RLock()
		secret, exists := localStore[key]
		localStoreMu.RUnlock()
		if exists {
			return secret, nil
		}
		return "", ErrNotFound
	}
	return secret, nil
}

// Delete removes the secret stored under the given key.
// Deleting a missing key is not an error.
func Delete(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	ensureStorage()

	if useLocalStorage {
		localStoreMu.Lock()
		delete(localStore, key)
		localStoreMu.Unlock()
		return saveLocalStore()
	}

	keyring.Delete(serviceName, key)

	// Also remove from local storage if present
	localStoreMu.Lock()
	delete(localStore, key)
	localStoreMu.Unlock()
	if localStoreFile != "" {
		saveLocalStore()
	}

	return nil
}

// Exists checks if a secret exists under the given key.
func Exists(key string) bool {
	_, err := Get(key)
	return err == nil
}
