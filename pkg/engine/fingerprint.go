package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// fingerprintVersion is folded into every digest. Bumping it invalidates all
// existing execution records.
const fingerprintVersion = "cascade-fingerprint-v1"

// absentMarker stands in for the hash of a file that does not exist.
const absentMarker = "absent"

// Fingerprinter computes workflow fingerprints from file contents.
type Fingerprinter struct{}

// NewFingerprinter creates a fingerprinter.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// Compute fingerprints node. deps must hold the current fingerprint of every
// direct dependency, so dependencies have to be fingerprinted first.
//
// A missing task file or dependency output hashes as "absent". A missing
// input or context file is an error: the workflow references it explicitly.
func (f *Fingerprinter) Compute(node *WorkflowNode, deps map[string]*Fingerprint, outputs map[string]string) (*Fingerprint, error) {
	c := Components{
		Config:            hashBytes(node.Config.Canonical()),
		Inputs:            make(map[string]string, len(node.InputFiles)),
		Context:           make(map[string]string, len(node.ContextFiles)),
		Dependencies:      make(map[string]string, len(node.Dependencies)),
		DependencyOutputs: make(map[string]string, len(node.Dependencies)),
	}

	task, err := hashFileOrAbsent(node.TaskFile)
	if err != nil {
		return nil, f.fileError(node, "task", node.TaskFile, err)
	}
	c.Task = task

	for _, path := range node.InputFiles {
		h, err := hashFile(path)
		if err != nil {
			return nil, f.fileError(node, "input", path, err)
		}
		c.Inputs[relPath(node.Root, path)] = h
	}
	for _, path := range node.ContextFiles {
		h, err := hashFile(path)
		if err != nil {
			return nil, f.fileError(node, "context", path, err)
		}
		c.Context[relPath(node.Root, path)] = h
	}

	for _, dep := range node.Dependencies {
		fp, ok := deps[dep]
		if !ok || fp == nil {
			return nil, NewPermanentError(fmt.Sprintf("dependency %s has not been fingerprinted", dep), nil).
				WithCode(ErrCodeInternal).
				WithWorkflow(node.ID)
		}
		c.Dependencies[dep] = fp.Digest

		out, err := hashFileOrAbsent(outputs[dep])
		if err != nil {
			return nil, f.fileError(node, "dependency output", outputs[dep], err)
		}
		c.DependencyOutputs[dep] = out
	}

	return &Fingerprint{Digest: digest(node.ID, c), Components: c}, nil
}

func (f *Fingerprinter) fileError(node *WorkflowNode, kind, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return NewPermanentError(fmt.Sprintf("%s file not found: %s", kind, relPath(node.Root, path)), err).
			WithCode(ErrCodeNotFound).
			WithWorkflow(node.ID)
	}
	return NewPermanentError(fmt.Sprintf("failed to hash %s file %s", kind, relPath(node.Root, path)), err).
		WithCode(ErrCodeInternal).
		WithWorkflow(node.ID)
}

// digest folds the components into a single hex sha256. Every field is
// length-prefixed and every map is walked in sorted key order.
func digest(id string, c Components) string {
	h := sha256.New()
	writeField(h, fingerprintVersion)
	writeField(h, id)
	writeField(h, c.Config)
	writeField(h, c.Task)
	writeMap(h, c.Inputs)
	writeMap(h, c.Context)
	writeMap(h, c.Dependencies)
	writeMap(h, c.DependencyOutputs)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(s)))
	h.Write(prefix[:])
	io.WriteString(h, s)
}

func writeMap(h hash.Hash, m map[string]string) {
	keys := sortedKeys(m)
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(keys)))
	h.Write(count[:])
	for _, k := range keys {
		writeField(h, k)
		writeField(h, m[k])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFileOrAbsent(path string) (string, error) {
	if path == "" {
		return absentMarker, nil
	}
	h, err := hashFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return absentMarker, nil
	}
	return h, err
}

func relPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
