package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a local-first store of creator account seeds.
//
// Layout:
//
//	<dir>/<name>/root.key           hex seed
//	<dir>/<name>/roles/<role>.key   hex seed derived with DeriveRoleSeed
//
// Every seed is also a secp256k1 private key, so each entry is an account.
type KeyStore struct {
	Directory string
}

// KeyEntry lists one named account and the roles derived from it.
type KeyEntry struct {
	Identifier string
	Address    string
	Roles      []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".calm", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) roleKeyPath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

func checkName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, char := range s {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, kind)
	}
	return nil
}

func CheckKeyName(identifier string) error { return checkName("identifier", identifier) }

func CheckRole(role string) error { return checkName("role", role) }

// ParseSeedHex parses a 32-byte hex seed.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

func saveSeed(filePath string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func loadSeed(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

func addressOfSeed(seed []byte) (string, error) {
	key, err := AccountFromSeed(seed)
	if err != nil {
		return "", err
	}
	return Address(key).Hex(), nil
}

// InitializeAccount stores seed as the root account for identifier and
// returns its address.
func (ks *KeyStore) InitializeAccount(identifier string, seed []byte, overwrite bool) (address string, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	if address, err = addressOfSeed(seed); err != nil {
		return "", "", err
	}
	filePath = ks.rootKeyPath(identifier)
	if err := saveSeed(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return address, filePath, nil
}

// DeriveAccount derives and stores the role account of from.
func (ks *KeyStore) DeriveAccount(from, role string, overwrite bool) (address string, filePath string, err error) {
	if err := CheckKeyName(from); err != nil {
		return "", "", err
	}
	rootSeed, err := loadSeed(ks.rootKeyPath(from))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	if address, err = addressOfSeed(roleSeed); err != nil {
		return "", "", err
	}
	filePath = ks.roleKeyPath(from, role)
	if err := saveSeed(filePath, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	return address, filePath, nil
}

// LoadAccount resolves a signer from, in order: a hex seed, a key file, or a
// stored name with optional role.
func (ks *KeyStore) LoadAccount(seedHex, name, role, keyFile string) (*ecdsa.PrivateKey, error) {
	var seed []byte
	var err error
	switch {
	case seedHex != "":
		seed, err = ParseSeedHex(seedHex)
	case keyFile != "":
		seed, err = loadSeed(keyFile)
	case name != "":
		if err := CheckKeyName(name); err != nil {
			return nil, err
		}
		if role == "" {
			seed, err = loadSeed(ks.rootKeyPath(name))
			break
		}
		if err := CheckRole(role); err != nil {
			return nil, err
		}
		seed, err = loadSeed(ks.roleKeyPath(name, role))
	default:
		return nil, errors.New("no signer provided")
	}
	if err != nil {
		return nil, err
	}
	return AccountFromSeed(seed)
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		entry := KeyEntry{Identifier: identifier}
		if seed, err := loadSeed(ks.rootKeyPath(identifier)); err == nil {
			entry.Address, _ = addressOfSeed(seed)
		}
		roleEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, identifier, "roles"))
		if rerr == nil {
			for _, roleEntry := range roleEntries {
				if roleEntry.IsDir() {
					continue
				}
				if strings.HasSuffix(roleEntry.Name(), ".key") {
					entry.Roles = append(entry.Roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(entry.Roles)
		}
		result = append(result, entry)
	}
	return result, nil
}
