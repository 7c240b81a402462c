package backends

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/devildex/devildex/internal/docset"
)

// ReadTheDocs downloads a prebuilt HTML docset from the ReadTheDocs API
// instead of running a generator locally. It is the last-resort backend and
// handles every target.
type ReadTheDocs struct {
	apiBase string
	client  *http.Client
}

// NewReadTheDocs builds the adapter against the given API base URL, e.g.
// "https://readthedocs.org/api/v3".
func NewReadTheDocs(apiBase string, client *http.Client) *ReadTheDocs {
	if client == nil {
		client = http.DefaultClient
	}
	return &ReadTheDocs{apiBase: strings.TrimRight(apiBase, "/"), client: client}
}

func (r *ReadTheDocs) Kind() docset.BackendKind { return docset.BackendReadTheDocs }

// CanHandle always reports true: fetching needs no local source tree.
func (r *ReadTheDocs) CanHandle(src Source) bool { return true }

func (r *ReadTheDocs) Prepare(workdir string) error {
	return os.MkdirAll(r.OutputDir(workdir), 0o755)
}

func (r *ReadTheDocs) OutputDir(workdir string) string {
	return filepath.Join(workdir, "fetched")
}

// rtdVersion mirrors the fields of the versions listing we act on.
type rtdVersion struct {
	Slug      string            `json:"slug"`
	Active    bool              `json:"active"`
	Built     bool              `json:"built"`
	Downloads map[string]string `json:"downloads"`
}

type rtdVersionPage struct {
	Next    string       `json:"next"`
	Results []rtdVersion `json:"results"`
}

func (r *ReadTheDocs) Run(ctx context.Context, target docset.Target, src Source, workdir string) Result {
	slug := docset.NormalizeName(target.PackageName)

	versions, f := r.listVersions(ctx, slug)
	if f != nil {
		return Result{Failure: f}
	}

	version := chooseVersion(versions, target.Version)
	if version == nil {
		return Fail(FailureOutputMissing, "readthedocs project %s has no active built version", slug)
	}
	zipURL, ok := version.Downloads["htmlzip"]
	if !ok || zipURL == "" {
		return Fail(FailureOutputMissing, "readthedocs version %s/%s offers no htmlzip download", slug, version.Slug)
	}
	if strings.HasPrefix(zipURL, "//") {
		zipURL = "https:" + zipURL
	}
	slog.Debug("Fetching readthedocs docset", "project", slug, "version", version.Slug, "url", zipURL)

	archive := filepath.Join(workdir, "htmlzip.zip")
	if f := r.download(ctx, zipURL, archive); f != nil {
		return Result{Failure: f}
	}

	out := r.OutputDir(workdir)
	if err := extractZip(archive, out); err != nil {
		return Fail(FailureOutputMissing, "unpacking htmlzip: %v", err)
	}

	docDir := locateIndexDir(out)
	if docDir == "" {
		return Fail(FailureOutputMissing, "htmlzip for %s/%s contains no index.html", slug, version.Slug)
	}
	if f := validateHTML(filepath.Join(docDir, "index.html")); f != nil {
		return Result{Failure: f}
	}
	return Success(docDir)
}

// listVersions walks the paginated versions endpoint for a project slug.
func (r *ReadTheDocs) listVersions(ctx context.Context, slug string) ([]rtdVersion, *Failure) {
	next := fmt.Sprintf("%s/projects/%s/versions/?active=true&limit=50", r.apiBase, url.PathEscape(slug))

	var versions []rtdVersion
	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, &Failure{Kind: FailureInvocation, Message: "building readthedocs request: " + err.Error()}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, &Failure{Kind: FailureInvocation, Message: "readthedocs api: " + err.Error()}
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, &Failure{Kind: FailureOutputMissing, Message: "project " + slug + " is not on readthedocs"}
		case resp.StatusCode >= 500:
			return nil, &Failure{Kind: FailureInvocation, Message: fmt.Sprintf("readthedocs api returned %d", resp.StatusCode)}
		case resp.StatusCode != http.StatusOK:
			return nil, &Failure{Kind: FailureOutputMissing, Message: fmt.Sprintf("readthedocs api returned %d for %s", resp.StatusCode, slug)}
		}
		if readErr != nil {
			return nil, &Failure{Kind: FailureInvocation, Message: "reading readthedocs response: " + readErr.Error()}
		}

		var page rtdVersionPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &Failure{Kind: FailureInvocation, Message: "decoding readthedocs response: " + err.Error()}
		}
		versions = append(versions, page.Results...)
		next = page.Next
	}
	return versions, nil
}

// chooseVersion picks the best active+built version, preferring an exact
// match for the target version, then stable, then latest.
func chooseVersion(versions []rtdVersion, targetVersion string) *rtdVersion {
	usable := make([]rtdVersion, 0, len(versions))
	for _, v := range versions {
		if v.Active && v.Built {
			usable = append(usable, v)
		}
	}
	if len(usable) == 0 {
		return nil
	}
	for _, preferred := range []string{targetVersion, "v" + targetVersion, "stable", "latest"} {
		for i := range usable {
			if usable[i].Slug == preferred {
				return &usable[i]
			}
		}
	}
	return &usable[0]
}

func (r *ReadTheDocs) download(ctx context.Context, rawURL, dest string) *Failure {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Failure{Kind: FailureInvocation, Message: "building download request: " + err.Error()}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return &Failure{Kind: FailureInvocation, Message: "downloading htmlzip: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &Failure{Kind: FailureInvocation, Message: fmt.Sprintf("htmlzip download returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return &Failure{Kind: FailureOutputMissing, Message: fmt.Sprintf("htmlzip download returned %d", resp.StatusCode)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &Failure{Kind: FailureInvocation, Message: "creating archive file: " + err.Error()}
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return &Failure{Kind: FailureInvocation, Message: "writing archive file: " + err.Error()}
	}
	return nil
}

// extractZip unpacks the archive under dest, refusing entries that would
// escape it.
func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := entry.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return err
		}
		_, copyErr := io.Copy(dst, src)
		src.Close()
		if closeErr := dst.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// locateIndexDir finds the directory carrying index.html: the extraction root
// itself, or the single top directory readthedocs archives wrap content with.
func locateIndexDir(root string) string {
	if fileExists(filepath.Join(root, "index.html")) {
		return root
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() && fileExists(filepath.Join(root, e.Name(), "index.html")) {
			return filepath.Join(root, e.Name())
		}
	}
	return ""
}

// validateHTML confirms the fetched entry point is parseable HTML rather
// than an error page or truncated download.
func validateHTML(path string) *Failure {
	f, err := os.Open(path)
	if err != nil {
		return &Failure{Kind: FailureOutputMissing, Message: "opening fetched index: " + err.Error()}
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil || doc == nil {
		return &Failure{Kind: FailureOutputMissing, Message: "fetched index.html is not parseable HTML"}
	}
	return nil
}
