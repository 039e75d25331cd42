package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/pipeline"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

type noopPermissions struct{}

func (noopPermissions) HasCrossUserPermission(identity.IPCCaller) bool   { return true }
func (noopPermissions) HasPersistencePermission(identity.IPCCaller) bool { return true }

type noopAccounts struct{}

func (noopAccounts) UserIDExists(uint32) bool { return true }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	registry, err := store.NewRegistry(t.TempDir())
	require.NoError(t, err)
	secret, err := keymgr.RandomMasterSecret()
	require.NoError(t, err)
	pipe := pipeline.New(registry, keymgr.NewManager(secret), session.NewTable(0), plugin.Noop{}, noopPermissions{}, noopAccounts{})
	return httptest.NewServer(NewRouter(&Handler{Pipeline: pipe}))
}

func doRequest(t *testing.T, srv *httptest.Server, method, path string, asset tag.Asset) *http.Response {
	t.Helper()
	body, err := EncodeAsset(asset)
	require.NoError(t, err)

	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-User-Id", "100")
	req.Header.Set("X-Native-Process", "test_proc")
	req.Header.Set("X-Native-Uid", "1000")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestRouterAddThenQueryRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	addResp := doRequest(t, srv, http.MethodPost, "/v1/assets/", tag.Asset{
		tag.Secret: tag.BytesValue([]byte("http-secret")),
		tag.Alias:  tag.BytesValue([]byte("http-alias")),
	})
	defer addResp.Body.Close()
	assert.Equal(t, http.StatusCreated, addResp.StatusCode)

	queryResp := doRequest(t, srv, http.MethodPost, "/v1/assets/query", tag.Asset{
		tag.Alias:      tag.BytesValue([]byte("http-alias")),
		tag.ReturnType: tag.NumberValue(tag.ReturnTypeAll),
	})
	defer queryResp.Body.Close()
	assert.Equal(t, http.StatusOK, queryResp.StatusCode)
}

func TestRouterRejectsRequestMissingCallerHeaders(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body, err := EncodeAsset(tag.Asset{tag.Secret: tag.BytesValue([]byte("x")), tag.Alias: tag.BytesValue([]byte("y"))})
	require.NoError(t, err)
	resp, err := srv.Client().Post(srv.URL+"/v1/assets/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouterRemoveThenQueryReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	addResp := doRequest(t, srv, http.MethodPost, "/v1/assets/", tag.Asset{
		tag.Secret: tag.BytesValue([]byte("to-be-removed")),
		tag.Alias:  tag.BytesValue([]byte("remove-me")),
	})
	addResp.Body.Close()
	require.Equal(t, http.StatusCreated, addResp.StatusCode)

	removeResp := doRequest(t, srv, http.MethodDelete, "/v1/assets/", tag.Asset{
		tag.Alias: tag.BytesValue([]byte("remove-me")),
	})
	removeResp.Body.Close()
	assert.Equal(t, http.StatusOK, removeResp.StatusCode)

	queryResp := doRequest(t, srv, http.MethodPost, "/v1/assets/query", tag.Asset{
		tag.Alias:      tag.BytesValue([]byte("remove-me")),
		tag.ReturnType: tag.NumberValue(tag.ReturnTypeAll),
	})
	defer queryResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, queryResp.StatusCode)
}
