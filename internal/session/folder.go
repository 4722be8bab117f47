package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
)

// Folder identifies one tagging session target.
type Folder struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
}

// HashFolder fingerprints the regular files beneath path by relative name,
// size, and modification time. Equal trees produce equal hashes.
func HashFolder(path string) (string, error) {
	type entry struct {
		rel   string
		size  int64
		mtime int64
	}
	var entries []entry
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), size: info.Size(), mtime: info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash folder %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := sha256.New()
	h.Write([]byte(filepath.Base(filepath.Clean(path))))
	for _, e := range entries {
		h.Write([]byte{0})
		h.Write([]byte(e.rel))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(e.size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(e.mtime, 10)))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CurrentOnDisk recomputes the identity of the folder at path.
func CurrentOnDisk(path string) (Folder, error) {
	hash, err := HashFolder(path)
	if err != nil {
		return Folder{}, err
	}
	return Folder{Hash: hash, Path: path}, nil
}
