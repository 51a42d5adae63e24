// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package patchfile classifies the files of a migration directory by their
// names into schema patches, data patches and fixes.
package patchfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
)

var (
	patchRe = regexp.MustCompile(`^(schema|data)\.(` + migration.VersionPattern + `)-(` + migration.VersionPattern + `)\.(?i:sql)$`)
	fixRe   = regexp.MustCompile(`^fix\.(` + migration.VersionPattern + `)-(\d+)\.(?i:sql)$`)
)

type entry struct {
	patches []migration.File
	fixes   []migration.FixFile
}

// Index caches the classified contents of migration directories by path.
// This struct is not thread safe.
type Index struct {
	cache map[string]*entry
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{cache: make(map[string]*entry)}
}

// PatchFiles returns the schema and data patches found directly in dir,
// ordered by kind, from and to.
func (i *Index) PatchFiles(dir string) ([]migration.File, error) {
	const op = "patchfile.(Index).PatchFiles"
	e, err := i.get(dir)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return e.patches, nil
}

// FixFiles returns the fix files found directly in dir, ordered by version
// and index.
func (i *Index) FixFiles(dir string) ([]migration.FixFile, error) {
	const op = "patchfile.(Index).FixFiles"
	e, err := i.get(dir)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return e.fixes, nil
}

// Invalidate forgets the cached contents of dir, or of every directory when
// dir is empty.
func (i *Index) Invalidate(dir string) {
	if dir == "" {
		i.cache = make(map[string]*entry)
		return
	}
	delete(i.cache, filepath.Clean(dir))
}

func (i *Index) get(dir string) (*entry, error) {
	dir = filepath.Clean(dir)
	if e, ok := i.cache[dir]; ok {
		return e, nil
	}
	e, err := scan(dir)
	if err != nil {
		return nil, err
	}
	i.cache[dir] = e
	return e, nil
}

func scan(dir string) (*entry, error) {
	const op = "patchfile.scan"
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, op, errors.WithCode(errors.InvalidPath))
		}
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Io))
	}

	e := &entry{}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		path := filepath.Join(dir, name)
		switch {
		case patchRe.MatchString(name):
			f, err := parsePatch(name, path)
			if err != nil {
				return nil, errors.Wrap(err, op)
			}
			e.patches = append(e.patches, f)
		case fixRe.MatchString(name):
			f, err := parseFix(name, path)
			if err != nil {
				return nil, errors.Wrap(err, op)
			}
			e.fixes = append(e.fixes, f)
		}
	}

	sort.SliceStable(e.patches, func(a, b int) bool {
		pa, pb := e.patches[a], e.patches[b]
		if pa.Kind != pb.Kind {
			return pa.Kind.Order() < pb.Kind.Order()
		}
		if c := pa.From.Compare(pb.From); c != 0 {
			return c < 0
		}
		return pa.To.Compare(pb.To) < 0
	})
	for k := 1; k < len(e.patches); k++ {
		prev, cur := e.patches[k-1], e.patches[k]
		if prev.Kind == cur.Kind && prev.From.Equal(cur.From) && prev.To.Equal(cur.To) {
			return nil, errors.New(errors.MigrationIntegrity, op,
				fmt.Sprintf("%s and %s describe the same %s hop", prev.Path, cur.Path, cur.Kind))
		}
	}

	sort.SliceStable(e.fixes, func(a, b int) bool {
		fa, fb := e.fixes[a], e.fixes[b]
		if c := fa.Version.Compare(fb.Version); c != 0 {
			return c < 0
		}
		return fa.Index < fb.Index
	})
	for k := 1; k < len(e.fixes); k++ {
		prev, cur := e.fixes[k-1], e.fixes[k]
		if prev.Version.Equal(cur.Version) && prev.Index == cur.Index {
			return nil, errors.New(errors.MigrationIntegrity, op,
				fmt.Sprintf("%s and %s describe the same fix", prev.Path, cur.Path))
		}
	}
	return e, nil
}

func parsePatch(name, path string) (migration.File, error) {
	const op = "patchfile.parsePatch"
	m := patchRe.FindStringSubmatch(name)
	from, err := migration.ParseVersion(m[2])
	if err != nil {
		return migration.File{}, errors.Wrap(err, op)
	}
	to, err := migration.ParseVersion(m[3])
	if err != nil {
		return migration.File{}, errors.Wrap(err, op)
	}
	if from.Equal(to) {
		return migration.File{}, errors.New(errors.MigrationIntegrity, op, fmt.Sprintf("%s does not change the version", path))
	}
	return migration.File{
		Name: name,
		Path: path,
		Kind: migration.Kind(m[1]),
		From: from,
		To:   to,
	}, nil
}

func parseFix(name, path string) (migration.FixFile, error) {
	const op = "patchfile.parseFix"
	m := fixRe.FindStringSubmatch(name)
	v, err := migration.ParseVersion(m[1])
	if err != nil {
		return migration.FixFile{}, errors.Wrap(err, op)
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return migration.FixFile{}, errors.Wrap(err, op, errors.WithCode(errors.MigrationIntegrity), errors.WithMsg(fmt.Sprintf("%s has an invalid fix index", path)))
	}
	return migration.FixFile{
		Name:    name,
		Path:    path,
		Version: v,
		Index:   idx,
	}, nil
}
