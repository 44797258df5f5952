package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/testutil"
)

func TestGetUserClasses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/games/iidx/SP/profile", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"classes": {"dan": 8}}`))
	}))
	defer ts.Close()

	client := NewProfileClient(ts.URL, "sekrit", testutil.Logger())

	classes, err := client.GetUserClasses(domain.GameIIDX, domain.PlaytypeSP, 42)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dan": 8}, classes)
}

func TestGetUserClassesNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewProfileClient(ts.URL, "", testutil.Logger())

	classes, err := client.GetUserClasses(domain.GameIIDX, domain.PlaytypeSP, 42)
	require.NoError(t, err)
	assert.Nil(t, classes)
}

func TestResolverSwallowsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewProfileClient(ts.URL, "", testutil.Logger())
	resolver := client.Resolver()

	classes, err := resolver(context.Background(), domain.GameIIDX, domain.PlaytypeSP, 42, nil)
	require.NoError(t, err)
	assert.Nil(t, classes)
}
