package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/worktimer-go/catalog"
)

type fakeCatalog struct {
	err error
}

func (f fakeCatalog) Projects(context.Context) ([]catalog.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []catalog.Project{{ID: "p1", Name: "Website"}}, nil
}

func (f fakeCatalog) Sections(context.Context) ([]catalog.Section, error) {
	return []catalog.Section{{ID: "s1", Name: "Backend", ProjectID: "p1"}}, f.err
}

func (f fakeCatalog) TasksBySection(_ context.Context, sectionID string) ([]catalog.Task, error) {
	return []catalog.Task{{ID: "t1", Name: "API", SectionID: sectionID}}, f.err
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(dst))
	}
	return res.StatusCode
}

func TestCatalogEndpoints(t *testing.T) {
	srv := NewServer(discardLogger(), "", newFakeController(), nil)
	srv.SetCatalog(fakeCatalog{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var projects []catalog.Project
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/projects", &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "Website", projects[0].Name)

	var sections []catalog.Section
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sections", &sections))
	assert.Equal(t, "p1", sections[0].ProjectID)

	var tasks []catalog.Task
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tasks?section=s1", &tasks))
	assert.Equal(t, "s1", tasks[0].SectionID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/tasks", nil))
}

func TestCatalogEndpointErrors(t *testing.T) {
	srv := NewServer(discardLogger(), "", newFakeController(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var body map[string]apiError
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/projects", &body))
	assert.Equal(t, "CATALOG_UNAVAILABLE", body["error"].Code)

	failing := NewServer(discardLogger(), "", newFakeController(), nil)
	failing.SetCatalog(fakeCatalog{err: errors.New("connection refused")})
	ts2 := httptest.NewServer(failing.Handler())
	defer ts2.Close()
	body = nil
	require.Equal(t, http.StatusBadGateway, getJSON(t, ts2.URL+"/api/projects", &body))
	assert.Equal(t, "CATALOG_FAILED", body["error"].Code)
}
