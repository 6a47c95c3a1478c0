// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arvadosplatform

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/ctxlog"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/dzlabs/lander/platform"
)

// referenceInputName is the collection holding a project's shared
// reference data.
const referenceInputName = "reference_input"

// reservedNames are manifest files written by the workflow runner;
// they describe one particular run and must never travel between
// collections.
var reservedNames = map[string]bool{
	"cwl.input.json":  true,
	"cwl.output.json": true,
}

// fileEntry locates one file in a collection by manifest stream
// ("." or "./sub/dir") and file name.
type fileEntry struct {
	Stream string
	Name   string
}

func (f fileEntry) path() string {
	return path.Clean(path.Join(f.Stream, f.Name))
}

func (p *ArvadosPlatform) getCollection(ctx context.Context, uuid string) (*arvados.Collection, error) {
	var coll arvados.Collection
	err := p.API.RequestAndDecodeContext(ctx, &coll, "GET", "arvados/v1/collections/"+uuid, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("arvados: get collection %s: %w", uuid, err)
	}
	return &coll, nil
}

func ownerNameFilters(ownerUUID, name string) []arvados.Filter {
	return []arvados.Filter{
		{Attr: "owner_uuid", Operator: "=", Operand: ownerUUID},
		{Attr: "name", Operator: "=", Operand: name},
	}
}

// listFiles returns every file in the collection filesystem, in
// directory walk order. With subdir, only files whose stream
// directory basename equals subdir are returned.
func listFiles(cfs arvados.CollectionFileSystem, subdir string) ([]fileEntry, error) {
	var files []fileEntry
	err := walkFiles(cfs, ".", func(stream, name string) {
		if subdir == "" || path.Base(stream) == subdir {
			files = append(files, fileEntry{Stream: stream, Name: name})
		}
	})
	return files, err
}

func walkFiles(cfs arvados.CollectionFileSystem, dir string, fn func(stream, name string)) error {
	d, err := cfs.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	fis, err := d.Readdir(-1)
	if err != nil {
		return err
	}
	sort.Slice(fis, func(i, j int) bool { return fis[i].Name() < fis[j].Name() })
	for _, fi := range fis {
		if fi.IsDir() {
			if err := walkFiles(cfs, dir+"/"+fi.Name(), fn); err != nil {
				return err
			}
		} else {
			fn(dir, fi.Name())
		}
	}
	return nil
}

// copyFiles copies every file from src into dst, preserving stream
// paths, except the reserved runner manifests. Individual file
// failures are skipped: partial success is acceptable and reported in
// the log only. The destination is persisted once, after all files
// have been processed.
func (p *ArvadosPlatform) copyFiles(ctx context.Context, src, dst *arvados.Collection, overwrite bool) error {
	logger := ctxlog.FromContext(ctx)
	srcFS, err := src.FileSystem(p.API, p.Keep)
	if err != nil {
		return fmt.Errorf("arvados: open collection %s: %w", src.UUID, err)
	}
	dstFS, err := dst.FileSystem(p.API, p.Keep)
	if err != nil {
		return fmt.Errorf("arvados: open collection %s: %w", dst.UUID, err)
	}
	files, err := listFiles(srcFS, "")
	if err != nil {
		return fmt.Errorf("arvados: list files in %s: %w", src.UUID, err)
	}
	var copied, skipped int
	var copiedBytes int64
	for _, f := range files {
		if reservedNames[f.Name] {
			continue
		}
		n, err := copyFile(srcFS, dstFS, f.path(), overwrite)
		if err != nil {
			logger.WithError(err).WithField("path", f.path()).Debug("skipping file")
			skipped++
			continue
		}
		copied++
		copiedBytes += n
	}
	if err := dstFS.Sync(); err != nil {
		return fmt.Errorf("arvados: save collection %s: %w", dst.UUID, err)
	}
	summary := logger.WithFields(logrus.Fields{
		"source":      src.UUID,
		"destination": dst.UUID,
		"copied":      copied,
		"skipped":     skipped,
		"size":        humanize.IBytes(uint64(copiedBytes)),
	})
	if skipped > 0 {
		// Skips don't fail the copy, but a partial result should
		// be visible without turning on debug logging.
		summary.Info("copied collection files")
	} else {
		summary.Debug("copied collection files")
	}
	return nil
}

func copyFile(srcFS, dstFS arvados.CollectionFileSystem, name string, overwrite bool) (int64, error) {
	if !overwrite {
		if _, err := dstFS.Stat(name); err == nil {
			return 0, os.ErrExist
		}
	}
	in, err := srcFS.Open(name)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if err := mkdirAll(dstFS, path.Dir(name)); err != nil {
		return 0, err
	}
	out, err := dstFS.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func mkdirAll(cfs arvados.CollectionFileSystem, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	if fi, err := cfs.Stat(dir); err == nil {
		if fi.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dir)
	}
	if err := mkdirAll(cfs, path.Dir(dir)); err != nil {
		return err
	}
	if err := cfs.Mkdir(dir, 0755); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

// CopyFolder copies the collection named by the first segment of
// folderPath from src into dst. The destination collection is created
// if needed, inheriting the source's description. Returns the
// destination collection uuid, or "" if the source collection does
// not exist.
func (p *ArvadosPlatform) CopyFolder(ctx context.Context, src *platform.Project, folderPath string, dst *platform.Project) (string, error) {
	name := firstPathSegment(folderPath)
	return p.copyCollectionByName(ctx, src, name, dst)
}

// CopyReferenceData copies src's reference_input collection into dst.
// Returns "" if src has no reference data.
func (p *ArvadosPlatform) CopyReferenceData(ctx context.Context, src, dst *platform.Project) (string, error) {
	return p.copyCollectionByName(ctx, src, referenceInputName, dst)
}

func (p *ArvadosPlatform) copyCollectionByName(ctx context.Context, src *platform.Project, name string, dst *platform.Project) (string, error) {
	var srcColl arvados.Collection
	ok, err := p.find(ctx, "collections", ownerNameFilters(src.UUID, name), &srcColl)
	if err != nil {
		return "", fmt.Errorf("arvados: list collections: %w", err)
	}
	if !ok {
		return "", nil
	}
	var dstColl arvados.Collection
	_, err = p.findOrCreate(ctx, "collections", "collection", ownerNameFilters(dst.UUID, name), map[string]interface{}{
		"owner_uuid":       dst.UUID,
		"name":             name,
		"description":      srcColl.Description,
		"preserve_version": true,
	}, &dstColl)
	if err != nil {
		return "", err
	}
	if err := p.copyFiles(ctx, &srcColl, &dstColl, false); err != nil {
		return "", err
	}
	return dstColl.UUID, nil
}

// GetFileID resolves a file path within project to a hash-addressed
// keep reference. Paths that are already absolute references (http...,
// keep...) pass through unchanged. The path's first segment names a
// collection in project; a missing collection is an error, since the
// caller is about to hand the reference to a workflow run.
func (p *ArvadosPlatform) GetFileID(ctx context.Context, project *platform.Project, filePath string) (string, error) {
	if strings.HasPrefix(filePath, "http") || strings.HasPrefix(filePath, "keep") {
		return filePath, nil
	}
	segments := strings.Split(strings.TrimPrefix(filePath, "/"), "/")
	name := segments[0]
	var coll arvados.Collection
	ok, err := p.find(ctx, "collections", ownerNameFilters(project.UUID, name), &coll)
	if err != nil {
		return "", fmt.Errorf("arvados: list collections: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("arvados: collection %q not found in project %s", name, project.UUID)
	}
	return "keep:" + coll.PortableDataHash + "/" + strings.Join(segments[1:], "/"), nil
}

// GetFolderID resolves a folder path within project to an id-addressed
// keep reference. The path's parent directory names a collection in
// project; the leaf is kept as the path below it. Returns "" if no
// such collection exists.
func (p *ArvadosPlatform) GetFolderID(ctx context.Context, project *platform.Project, folderPath string) (string, error) {
	dir, leaf := path.Split(folderPath)
	name := strings.TrimPrefix(strings.TrimSuffix(dir, "/"), "/")
	var coll arvados.Collection
	ok, err := p.find(ctx, "collections", ownerNameFilters(project.UUID, name), &coll)
	if err != nil {
		return "", fmt.Errorf("arvados: list collections: %w", err)
	}
	if !ok {
		return "", nil
	}
	return "keep:" + coll.UUID + "/" + leaf, nil
}

func firstPathSegment(p string) string {
	return strings.Split(strings.TrimPrefix(p, "/"), "/")[0]
}
