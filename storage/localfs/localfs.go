package localfs

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
	"xdao.co/calm/storage"
)

// CAS stores token metadata as read-only files, sharded by the sha1 digest a
// token id carries in its upper 160 bits:
//
//	<root>/<digest[0:2]>/<digest>
//
// Get re-hashes what it reads, so a file changed on disk is reported as
// ErrCIDMismatch rather than served.
type CAS struct {
	root string
}

// New opens a store rooted at root, creating the directory if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

// Root returns the directory the store writes to.
func (c *CAS) Root() string { return c.root }

// Put writes b once. Writing the same bytes again is a no-op; anything else
// already stored under the digest is ErrImmutable.
func (c *CAS) Put(b []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		return cid.Undef, err
	}
	path := c.pathFor(id)
	if done, err := c.matchExisting(path, b); err != nil {
		return cid.Undef, err
	} else if done {
		return id, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cid.Undef, err
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return cid.Undef, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, err
	}
	if err := os.Chmod(tmp.Name(), 0o444); err != nil {
		return cid.Undef, err
	}
	// Link never replaces an existing object, unlike rename.
	if err := os.Link(tmp.Name(), path); err != nil {
		if os.IsExist(err) {
			if _, err := c.matchExisting(path, b); err != nil {
				return cid.Undef, err
			}
			return id, nil
		}
		return cid.Undef, err
	}
	return id, nil
}

// matchExisting reports whether path already holds b.
func (c *CAS) matchExisting(path string, b []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !bytes.Equal(existing, b) {
			return false, storage.ErrImmutable
		}
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, storage.ErrImmutable
	}
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if err := storage.CheckCID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if storage.CheckCID(id) != nil {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

// pathFor expects a CID that passed storage.CheckCID.
func (c *CAS) pathFor(id cid.Cid) string {
	d, _ := cidutil.DigestFromCID(id)
	name := hex.EncodeToString(d[:])
	return filepath.Join(c.root, name[:2], name)
}
