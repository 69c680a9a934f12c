// Package bundle moves token metadata between stores as a deterministic TAR
// archive.
//
// Layout:
//
//	blocks/<cid>   raw metadata bytes, CIDv1 raw sha1
//	index.json     optional, non-authoritative: block sizes and labels
//
// Labels usually name the token id a block was minted under. Import trusts
// nothing but the bytes: every block is re-hashed against its entry name.
package bundle

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
	"xdao.co/calm/storage"
)

// FormatVersion is the current index.json schema version.
const FormatVersion = 1

const blocksDir = "blocks/"

var epoch = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Labels maps names (typically token ids) to block CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex writes index.json.
	IncludeIndex bool
}

// Export writes the blocks for ids from cas to w.
//
// Output is byte-for-byte reproducible: entries are sorted by CID and TAR
// headers carry no times, owners or permissions beyond 0644.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	idx := index{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha1"}
	for _, s := range names {
		b, err := cas.Get(uniq[s])
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		got, err := cidutil.CIDv1RawSHA1(b)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if got.String() != s {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeEntry(tw, blocksDir+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		idx.Blocks = append(idx.Blocks, indexBlock{CID: s, Size: len(b)})
	}

	if opts.IncludeIndex {
		labels := make([]string, 0, len(opts.Labels))
		for k := range opts.Labels {
			if k == "" {
				_ = tw.Close()
				return fmt.Errorf("bundle: empty label")
			}
			labels = append(labels, k)
		}
		sort.Strings(labels)
		for _, k := range labels {
			v := opts.Labels[k]
			if !v.Defined() {
				_ = tw.Close()
				return storage.ErrInvalidCID
			}
			idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
		}
		b, err := json.Marshal(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeEntry(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips entries outside blocks/ instead of failing.
	IgnoreUnknown bool
}

// Import copies every block in r into cas and returns their CIDs in
// archive order.
func Import(r io.Reader, cas storage.CAS) ([]cid.Cid, error) {
	return ImportWithOptions(r, cas, ImportOptions{})
}

func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) ([]cid.Cid, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []cid.Cid
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			continue
		}
		if !strings.HasPrefix(name, blocksDir) {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry %s", name)
		}

		id, err := cid.Decode(strings.TrimPrefix(name, blocksDir))
		if err != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		if _, dup := seen[id.String()]; dup {
			return imported, fmt.Errorf("bundle: duplicate block %s", id)
		}
		seen[id.String()] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		got, err := cidutil.CIDv1RawSHA1(payload)
		if err != nil {
			return imported, err
		}
		if !got.Equals(id) {
			return imported, storage.ErrCIDMismatch
		}
		put, err := cas.Put(payload)
		if err != nil {
			return imported, err
		}
		if !put.Equals(id) {
			return imported, storage.ErrCIDMismatch
		}
		imported = append(imported, id)
	}
}

type index struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// cleanPath normalizes an entry name and rejects traversal.
func cleanPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
