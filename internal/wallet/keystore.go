package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// ErrKeyNotFound is returned when a wallet holds no key for an account.
var ErrKeyNotFound = errors.New("no key for account")

const keystoreVersion = 2

// keystoreFile is the on-disk JSON format of a wallet.
type keystoreFile struct {
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	EncryptedSeed []byte     `json:"encrypted_seed"`
	Keys          []KeyEntry `json:"keys"`
}

// KeyEntry records a derived signer key and the account it signs for.
// The account is either a named account the key was registered on or the
// key's implicit account.
type KeyEntry struct {
	Index     uint32          `json:"index"`
	Name      string          `json:"name,omitempty"`
	Account   types.AccountID `json:"account_id"`
	PublicKey types.PublicKey `json:"public_key"`
}

// Curve returns the curve the key signs with.
func (e KeyEntry) Curve() types.Curve {
	return e.PublicKey.Curve
}

// Keystore manages encrypted wallet files in a directory.
type Keystore struct {
	path string
}

// NewKeystore opens a keystore directory, creating it if needed.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create writes a new wallet holding seed encrypted under password.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}

	encrypted, err := Encrypt(seed, password, []byte(name), params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	return ks.writeFile(path, &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Keys:          []KeyEntry{},
	})
}

// Load decrypts a wallet and returns its seed.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	return seed, nil
}

// AddKey records a derived key. Re-adding an identical entry is a no-op;
// reusing an index for another key or account is an error.
func (ks *Keystore) AddKey(walletName string, entry KeyEntry) error {
	path := ks.walletPath(walletName)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}
	for _, existing := range kf.Keys {
		if existing.Index == entry.Index && existing.Curve() == entry.Curve() {
			if existing.PublicKey == entry.PublicKey && existing.Account == entry.Account {
				return nil
			}
			return fmt.Errorf("%s key index %d already registered", entry.Curve(), entry.Index)
		}
	}
	kf.Keys = append(kf.Keys, entry)
	return ks.writeFile(path, kf)
}

// Keys returns the key entries of a wallet.
func (ks *Keystore) Keys(walletName string) ([]KeyEntry, error) {
	kf, err := ks.readFile(ks.walletPath(walletName))
	if err != nil {
		return nil, err
	}
	return kf.Keys, nil
}

// FindKey returns the first key registered for account.
func (ks *Keystore) FindKey(walletName string, account types.AccountID) (KeyEntry, error) {
	keys, err := ks.Keys(walletName)
	if err != nil {
		return KeyEntry{}, err
	}
	for _, k := range keys {
		if k.Account == account {
			return k, nil
		}
	}
	return KeyEntry{}, fmt.Errorf("%w %s in wallet %q", ErrKeyNotFound, account, walletName)
}

// NextIndex returns the lowest derivation index not used by any key.
func (ks *Keystore) NextIndex(walletName string) (uint32, error) {
	keys, err := ks.Keys(walletName)
	if err != nil {
		return 0, err
	}
	var next uint32
	for _, k := range keys {
		if k.Index >= next {
			next = k.Index + 1
		}
	}
	return next, nil
}

// Signer decrypts the wallet and re-derives the signer of entry. The derived
// key must match the recorded public key.
func (ks *Keystore) Signer(walletName string, password []byte, entry KeyEntry) (crypto.Signer, error) {
	seed, err := ks.Load(walletName, password)
	if err != nil {
		return nil, err
	}
	defer zero(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	leaf, err := master.DeriveSigner(0, entry.Index)
	if err != nil {
		return nil, err
	}
	signer, err := leaf.Signer(entry.Curve())
	if err != nil {
		return nil, err
	}
	if signer.Key() != entry.PublicKey {
		return nil, fmt.Errorf("wallet %q: derived key does not match %s", walletName, entry.PublicKey)
	}
	return signer, nil
}

// List returns the names of all wallets in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}

// writeFile replaces the wallet file through a rename so a crash never
// leaves it truncated.
func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
