// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package arvadosplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/ctxlog"
	check "gopkg.in/check.v1"

	"github.com/dzlabs/lander/platform"
)

const (
	fakeSrcCollUUID = "zzzzz-4zz18-srccollsrccol"
	fakeDstCollUUID = "zzzzz-4zz18-dstcolldstcol"
)

var (
	srcProject = &platform.Project{UUID: fakeSrcProjectUUID, Name: "genomes"}
	dstProject = &platform.Project{UUID: fakeDstProjectUUID, Name: "results"}
)

func collJSON(c *check.C, attrs map[string]interface{}) string {
	buf, err := json.Marshal(attrs)
	c.Assert(err, check.IsNil)
	return string(buf)
}

// manifestFromPut unpacks the manifest_text from a collection update
// request.
func manifestFromPut(c *check.C, params url.Values) string {
	var attrs map[string]string
	err := json.Unmarshal([]byte(params.Get("collection")), &attrs)
	c.Assert(err, check.IsNil)
	return attrs["manifest_text"]
}

func (s *adapterSuite) TestCopyReferenceData(c *check.C) {
	fooLoc := s.keep.put([]byte("foo\n"))
	barLoc := s.keep.put([]byte("bar\n"))
	srcManifest := ". " + fooLoc + " 0:4:cwl.input.json 0:4:cwl.output.json 0:4:foo.txt\n" +
		"./sub " + barLoc + " 0:4:bar.txt\n"

	var savedManifest string
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		switch {
		case method == "GET" && path == "/arvados/v1/collections":
			filters := decodeFilters(c, params)
			c.Check(hasFilter(filters, "name", "=", referenceInputName), check.Equals, true)
			if hasFilter(filters, "owner_uuid", "=", fakeSrcProjectUUID) {
				return http.StatusOK, list(collJSON(c, map[string]interface{}{
					"uuid":          fakeSrcCollUUID,
					"name":          referenceInputName,
					"description":   "hg38 bundle",
					"manifest_text": srcManifest,
				}))
			}
			return http.StatusOK, list()
		case method == "POST" && path == "/arvados/v1/collections":
			var attrs map[string]interface{}
			c.Assert(json.Unmarshal([]byte(params.Get("collection")), &attrs), check.IsNil)
			c.Check(attrs["owner_uuid"], check.Equals, fakeDstProjectUUID)
			c.Check(attrs["name"], check.Equals, referenceInputName)
			c.Check(attrs["description"], check.Equals, "hg38 bundle")
			c.Check(attrs["preserve_version"], check.Equals, true)
			return http.StatusOK, collJSON(c, map[string]interface{}{
				"uuid": fakeDstCollUUID,
				"name": referenceInputName,
			})
		case method == "GET" && path == "/arvados/v1/collections/"+fakeDstCollUUID:
			// Sync() refreshes the destination record before
			// saving.
			return http.StatusOK, collJSON(c, map[string]interface{}{
				"uuid":          fakeDstCollUUID,
				"manifest_text": "",
			})
		case method == "PUT" && path == "/arvados/v1/collections/"+fakeDstCollUUID:
			savedManifest = manifestFromPut(c, params)
			return http.StatusOK, collJSON(c, map[string]interface{}{"uuid": fakeDstCollUUID})
		}
		c.Errorf("unexpected request: %s %s", method, path)
		return http.StatusNotFound, "{}"
	}

	id, err := s.p.CopyReferenceData(context.Background(), srcProject, dstProject)
	c.Assert(err, check.IsNil)
	c.Check(id, check.Equals, fakeDstCollUUID)

	c.Check(strings.Contains(savedManifest, ":foo.txt"), check.Equals, true)
	c.Check(strings.Contains(savedManifest, "./sub"), check.Equals, true)
	c.Check(strings.Contains(savedManifest, ":bar.txt"), check.Equals, true)
	// Run manifests never travel between collections.
	c.Check(strings.Contains(savedManifest, "cwl.input.json"), check.Equals, false)
	c.Check(strings.Contains(savedManifest, "cwl.output.json"), check.Equals, false)
}

func (s *adapterSuite) TestCopyReferenceDataMissingSource(c *check.C) {
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		return http.StatusOK, list()
	}
	id, err := s.p.CopyReferenceData(context.Background(), srcProject, dstProject)
	c.Check(err, check.IsNil)
	c.Check(id, check.Equals, "")
	c.Check(s.stub.find("POST", "/arvados/v1/collections"), check.HasLen, 0)
}

func (s *adapterSuite) TestCopyFolderKeepsExistingFiles(c *check.C) {
	newLoc := s.keep.put([]byte("new\n"))
	oldLoc := s.keep.put([]byte("old\n"))
	barLoc := s.keep.put([]byte("bar\n"))
	srcManifest := ". " + newLoc + " 0:4:foo.txt\n./sub " + barLoc + " 0:4:bar.txt\n"
	dstManifest := ". " + oldLoc + " 0:4:foo.txt\n"

	var savedManifest string
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		switch {
		case method == "GET" && path == "/arvados/v1/collections":
			filters := decodeFilters(c, params)
			c.Check(hasFilter(filters, "name", "=", "inputs"), check.Equals, true)
			if hasFilter(filters, "owner_uuid", "=", fakeSrcProjectUUID) {
				return http.StatusOK, list(collJSON(c, map[string]interface{}{
					"uuid":          fakeSrcCollUUID,
					"name":          "inputs",
					"manifest_text": srcManifest,
				}))
			}
			return http.StatusOK, list(collJSON(c, map[string]interface{}{
				"uuid":          fakeDstCollUUID,
				"name":          "inputs",
				"manifest_text": dstManifest,
			}))
		case method == "GET" && path == "/arvados/v1/collections/"+fakeDstCollUUID:
			return http.StatusOK, collJSON(c, map[string]interface{}{
				"uuid":          fakeDstCollUUID,
				"manifest_text": dstManifest,
			})
		case method == "PUT" && path == "/arvados/v1/collections/"+fakeDstCollUUID:
			savedManifest = manifestFromPut(c, params)
			return http.StatusOK, collJSON(c, map[string]interface{}{"uuid": fakeDstCollUUID})
		}
		c.Errorf("unexpected request: %s %s", method, path)
		return http.StatusNotFound, "{}"
	}

	var logbuf bytes.Buffer
	ctx := ctxlog.Context(context.Background(), ctxlog.New(&logbuf, "text", "info"))
	id, err := s.p.CopyFolder(ctx, srcProject, "inputs/sub/deep", dstProject)
	c.Assert(err, check.IsNil)
	c.Check(id, check.Equals, fakeDstCollUUID)
	c.Check(s.stub.find("POST", "/arvados/v1/collections"), check.HasLen, 0)

	// foo.txt already existed in the destination and keeps its old
	// content; bar.txt is new and gets copied.
	c.Check(strings.Contains(savedManifest, oldLoc), check.Equals, true)
	c.Check(strings.Contains(savedManifest, newLoc), check.Equals, false)
	c.Check(strings.Contains(savedManifest, ":bar.txt"), check.Equals, true)

	// A partial copy is visible at default log level.
	c.Check(logbuf.String(), check.Matches, `(?s).*copied collection files.*`)
	c.Check(logbuf.String(), check.Matches, `(?s).*skipped=1.*`)
}

func (s *adapterSuite) TestGetFileIDPassthrough(c *check.C) {
	// Client setup probes discovery endpoints through the same
	// transport; only requests made by GetFileID itself count.
	s.stub.mtx.Lock()
	s.stub.calls = nil
	s.stub.mtx.Unlock()
	for _, ref := range []string{
		"keep:d3b07384d113edec49eaa6238ad5ff00+4/foo.txt",
		"http://example.com/data/foo.txt",
		"https://example.com/data/foo.txt",
	} {
		id, err := s.p.GetFileID(context.Background(), dstProject, ref)
		c.Check(err, check.IsNil)
		c.Check(id, check.Equals, ref)
	}
	c.Check(s.stub.calls, check.HasLen, 0)
}

func (s *adapterSuite) TestGetFileID(c *check.C) {
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		filters := decodeFilters(c, params)
		c.Check(hasFilter(filters, "owner_uuid", "=", fakeDstProjectUUID), check.Equals, true)
		c.Check(hasFilter(filters, "name", "=", "refs"), check.Equals, true)
		return http.StatusOK, list(collJSON(c, map[string]interface{}{
			"uuid":               fakeDstCollUUID,
			"portable_data_hash": "d3b07384d113edec49eaa6238ad5ff00+4",
		}))
	}
	for _, path := range []string{"refs/sub/file.txt", "/refs/sub/file.txt"} {
		id, err := s.p.GetFileID(context.Background(), dstProject, path)
		c.Assert(err, check.IsNil)
		c.Check(id, check.Equals, "keep:d3b07384d113edec49eaa6238ad5ff00+4/sub/file.txt")
	}
}

func (s *adapterSuite) TestListFilesSubdir(c *check.C) {
	loc := s.keep.put([]byte("foo\n"))
	coll := arvados.Collection{ManifestText: ". " + loc + " 0:4:a.txt\n" +
		"./sub " + loc + " 0:4:b.txt\n" +
		"./other/sub " + loc + " 0:4:c.txt\n"}
	cfs, err := coll.FileSystem(s.p.API, s.p.Keep)
	c.Assert(err, check.IsNil)

	files, err := listFiles(cfs, "")
	c.Assert(err, check.IsNil)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.path())
	}
	c.Check(paths, check.DeepEquals, []string{"a.txt", "other/sub/c.txt", "sub/b.txt"})

	// The subdir filter matches the stream directory's basename,
	// wherever the stream sits.
	files, err = listFiles(cfs, "sub")
	c.Assert(err, check.IsNil)
	paths = nil
	for _, f := range files {
		paths = append(paths, f.path())
	}
	c.Check(paths, check.DeepEquals, []string{"other/sub/c.txt", "sub/b.txt"})
}

func (s *adapterSuite) TestGetFileIDMissingCollection(c *check.C) {
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		return http.StatusOK, list()
	}
	_, err := s.p.GetFileID(context.Background(), dstProject, "refs/sub/file.txt")
	c.Check(err, check.ErrorMatches, `.*collection "refs" not found.*`)
}

func (s *adapterSuite) TestGetFolderID(c *check.C) {
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		filters := decodeFilters(c, params)
		c.Check(hasFilter(filters, "name", "=", "refs"), check.Equals, true)
		return http.StatusOK, list(collJSON(c, map[string]interface{}{"uuid": fakeDstCollUUID}))
	}
	id, err := s.p.GetFolderID(context.Background(), dstProject, "refs/genome")
	c.Assert(err, check.IsNil)
	c.Check(id, check.Equals, "keep:"+fakeDstCollUUID+"/genome")
}

func (s *adapterSuite) TestGetFolderIDMissing(c *check.C) {
	s.stub.handler = func(method, path string, params url.Values) (int, string) {
		return http.StatusOK, list()
	}
	id, err := s.p.GetFolderID(context.Background(), dstProject, "refs/genome")
	c.Check(err, check.IsNil)
	c.Check(id, check.Equals, "")
}
