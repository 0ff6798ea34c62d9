package github_test

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v75/github"
)

// fakeGitHub serves the subset of the GitHub API used for releases.
// As on github.com, assets in the "starter" state are left out of REST
// listings and drafts are only visible in the release list.
type fakeGitHub struct {
	mu       sync.Mutex
	server   *httptest.Server
	nextID   int64
	releases map[string]*fakeRelease
	pageSize int

	// intercept may answer a request before the fake does; it returns true if it did
	intercept func(w http.ResponseWriter, r *http.Request) bool
	// uploadState decides the state of an uploaded asset; "uploaded" when nil
	uploadState func(name string) string

	authHeaders      []string
	uploads          []fakeUpload
	deletes          []int64
	graphqlCalls     int
	listReleaseCalls int
}

type fakeRelease struct {
	release *github.RepositoryRelease
	assets  []*github.ReleaseAsset
}

type fakeUpload struct {
	name        string
	contentType string
	body        []byte
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()

	f := &fakeGitHub{
		nextID:   1000,
		releases: make(map[string]*fakeRelease),
		pageSize: 100,
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
			intercept := f.intercept
			f.mu.Unlock()

			if intercept != nil && intercept(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/repos/{owner}/{repo}/releases/tags/{tag}", f.getReleaseByTag)
	r.Get("/repos/{owner}/{repo}/releases", f.listReleases)
	r.Post("/repos/{owner}/{repo}/releases", f.createRelease)
	r.Get("/repos/{owner}/{repo}/releases/{id}/assets", f.listAssets)
	r.Get("/repos/{owner}/{repo}/releases/assets/{id}", f.getAsset)
	r.Delete("/repos/{owner}/{repo}/releases/assets/{id}", f.deleteAsset)
	r.Post("/upload/repos/{owner}/{repo}/releases/{id}/assets", f.uploadAsset)
	r.Post("/graphql", f.graphql)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeGitHub) URL() string {
	return f.server.URL + "/"
}

func (f *fakeGitHub) UploadURL() string {
	return f.server.URL + "/upload/"
}

func (f *fakeGitHub) id() int64 {
	f.nextID++
	return f.nextID
}

// addRelease seeds a release
func (f *fakeGitHub) addRelease(tag, body string) *github.RepositoryRelease {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addReleaseLocked(&github.RepositoryRelease{
		TagName: github.Ptr(tag),
		Body:    github.Ptr(body),
	})
}

func (f *fakeGitHub) addReleaseLocked(req *github.RepositoryRelease) *github.RepositoryRelease {
	id := f.id()
	release := &github.RepositoryRelease{
		ID:              github.Ptr(id),
		TagName:         req.TagName,
		TargetCommitish: req.TargetCommitish,
		Name:            req.Name,
		Body:            req.Body,
		Draft:           req.Draft,
		Prerelease:      req.Prerelease,
		UploadURL:       github.Ptr(fmt.Sprintf("%s/upload/repos/owner/repo/releases/%d/assets{?name,label}", f.server.URL, id)),
		HTMLURL:         github.Ptr(fmt.Sprintf("%s/owner/repo/releases/tag/%s", f.server.URL, req.GetTagName())),
	}
	f.releases[req.GetTagName()] = &fakeRelease{release: release}
	return release
}

// addAsset seeds an asset
func (f *fakeGitHub) addAsset(tag, name string, size int, state string) *github.ReleaseAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel := f.releases[tag]
	asset := &github.ReleaseAsset{
		ID:    github.Ptr(f.id()),
		Name:  github.Ptr(name),
		Size:  github.Ptr(size),
		State: github.Ptr(state),
	}
	rel.assets = append(rel.assets, asset)
	return asset
}

func (f *fakeGitHub) assets(tag string) []*github.ReleaseAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel, ok := f.releases[tag]
	if !ok {
		return nil
	}
	return append([]*github.ReleaseAsset(nil), rel.assets...)
}

func (f *fakeGitHub) releaseByID(id int64) *fakeRelease {
	for _, rel := range f.releases {
		if rel.release.GetID() == id {
			return rel
		}
	}
	return nil
}

func (f *fakeGitHub) getReleaseByTag(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rel, ok := f.releases[chi.URLParam(r, "tag")]
	if !ok || rel.release.GetDraft() {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, rel.release)
}

func (f *fakeGitHub) listReleases(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listReleaseCalls++

	all := make([]*github.RepositoryRelease, 0, len(f.releases))
	for _, rel := range f.releases {
		all = append(all, rel.release)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].GetID() > all[j].GetID() })

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	start := min((page-1)*f.pageSize, len(all))
	end := min(start+f.pageSize, len(all))
	if end < len(all) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, f.server.URL, next.String()))
	}

	writeJSON(w, http.StatusOK, all[start:end])
}

func (f *fakeGitHub) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.releases)
}

func (f *fakeGitHub) createRelease(w http.ResponseWriter, r *http.Request) {
	var req github.RepositoryRelease
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.releases[req.GetTagName()]; ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation Failed",
			"errors": []map[string]string{
				{"resource": "Release", "code": "already_exists", "field": "tag_name"},
			},
		})
		return
	}

	writeJSON(w, http.StatusCreated, f.addReleaseLocked(&req))
}

func (f *fakeGitHub) listAssets(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	rel := f.releaseByID(id)
	if rel == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	var visible []*github.ReleaseAsset
	for _, a := range rel.assets {
		if a.GetState() != "starter" {
			visible = append(visible, a)
		}
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	start := (page - 1) * f.pageSize
	end := min(start+f.pageSize, len(visible))
	if start > len(visible) {
		start = end
	}
	if end < len(visible) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, f.server.URL, next.String()))
	}

	writeJSON(w, http.StatusOK, append([]*github.ReleaseAsset{}, visible[start:end]...))
}

func (f *fakeGitHub) findAsset(id int64) (*fakeRelease, int) {
	for _, rel := range f.releases {
		for i, a := range rel.assets {
			if a.GetID() == id {
				return rel, i
			}
		}
	}
	return nil, -1
}

func (f *fakeGitHub) getAsset(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	rel, i := f.findAsset(id)
	if rel == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, rel.assets[i])
}

func (f *fakeGitHub) deleteAsset(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	rel, i := f.findAsset(id)
	if rel == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	rel.assets = append(rel.assets[:i:i], rel.assets[i+1:]...)
	f.deletes = append(f.deletes, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGitHub) uploadAsset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	name := r.URL.Query().Get("name")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, fakeUpload{
		name:        name,
		contentType: r.Header.Get("Content-Type"),
		body:        body,
	})

	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	rel := f.releaseByID(id)
	if rel == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	for _, a := range rel.assets {
		if a.GetName() == name {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "Validation Failed",
				"errors": []map[string]string{
					{"resource": "ReleaseAsset", "code": "already_exists", "field": "name"},
				},
			})
			return
		}
	}

	state := "uploaded"
	if f.uploadState != nil {
		state = f.uploadState(name)
	}
	asset := &github.ReleaseAsset{
		ID:                 github.Ptr(f.id()),
		Name:               github.Ptr(name),
		Size:               github.Ptr(len(body)),
		State:              github.Ptr(state),
		ContentType:        github.Ptr(r.Header.Get("Content-Type")),
		BrowserDownloadURL: github.Ptr(f.server.URL + "/download/" + name),
	}
	rel.assets = append(rel.assets, asset)
	writeJSON(w, http.StatusCreated, asset)
}

func (f *fakeGitHub) graphql(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphqlCalls++

	tag, _ := req.Variables["tag"].(string)
	name, _ := req.Variables["name"].(string)

	rel, ok := f.releases[tag]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"repository": map[string]any{"release": nil}},
		})
		return
	}

	nodes := []map[string]string{}
	for _, a := range rel.assets {
		if a.GetName() == name {
			nodes = append(nodes, map[string]string{"id": encodeNodeID(a.GetID())})
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"repository": map[string]any{
				"release": map[string]any{
					"releaseAssets": map[string]any{"nodes": nodes},
				},
			},
		},
	})
}

// encodeNodeID builds a node id in the current "RA_" format
func encodeNodeID(id int64) string {
	raw := []byte{0x93, 0x00, 0xce, 0x0c, 0xd8, 0x5c, 0xd1, 0xce, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(raw[len(raw)-4:], uint32(id))
	return "RA_" + base64.RawURLEncoding.EncodeToString(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
