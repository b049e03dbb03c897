package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

func TestAdminSubtreeRequiresAdmin(t *testing.T) {
	e := newTestEnv(t)
	client := seedClient(e)

	rec := e.do(t, http.MethodGet, "/api/v1/admin/images", nil, sessionCookies(e, client))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "E_ADMIN_ACCOUNT_REQUIRED", errorCode(t, rec))
}

func TestCreateImage(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/images", map[string]interface{}{
		"name": "base-2", "engines": []string{"libfuzzer"},
	}, sessionCookies(e, admin))
	require.Equal(t, http.StatusCreated, rec.Code)

	var image model.Image
	decodeJSON(t, rec, &image)
	assert.NotEmpty(t, image.ID)
	// Images come up not ready until the registry confirms the push.
	assert.Equal(t, model.ImageNotReady, image.Status)
}

func TestCreateImageUnknownEngine(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/images", map[string]interface{}{
		"name": "base-2", "engines": []string{"honggfuzz"},
	}, sessionCookies(e, admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "E_ENGINE_NOT_FOUND", errorCode(t, rec))
}

func TestCreateImageBadStatus(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/images", map[string]interface{}{
		"name": "base-2", "status": "Building",
	}, sessionCookies(e, admin))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "E_VALIDATION_FAILED", errorCode(t, rec))
}

func TestUpdateImageKeepsIdentity(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPut, "/api/v1/admin/images/img1", map[string]interface{}{
		"name": "base", "status": "Ready", "engines": []string{"libfuzzer"},
	}, sessionCookies(e, admin))
	require.Equal(t, http.StatusOK, rec.Code)

	var image model.Image
	decodeJSON(t, rec, &image)
	assert.Equal(t, "img1", image.ID)
}

func TestDeleteImageInUse(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)
	client := seedClient(e)
	project := seedProject(e, "p1", client.ID)
	fuzzer := seedFuzzer(e, "f1", project.ID)
	seedRevision(e, "r1", fuzzer.ID, model.RevisionRunning)

	rec := e.do(t, http.MethodDelete, "/api/v1/admin/images/img1", nil, sessionCookies(e, admin))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var apiErr apierr.Error
	decodeJSON(t, rec, &apiErr)
	assert.Equal(t, "E_IMAGE_IN_USE_BY", apiErr.Code)
	assert.Contains(t, apiErr.Params, "rev-r1")
}

func TestDeleteUnusedImage(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodDelete, "/api/v1/admin/images/img1", nil, sessionCookies(e, admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, e.fake.Images, "img1")
}

func TestCreateEngineUnknownFamily(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/engines", map[string]interface{}{
		"display_name": "Honggfuzz", "family": "honggfuzz", "langs": []string{"cpp"},
	}, sessionCookies(e, admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "E_UNKNOWN_ENGINE_FAMILY", errorCode(t, rec))
}

func TestCreateEngineUnknownLang(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/engines", map[string]interface{}{
		"display_name": "AFL++", "family": "afl", "langs": []string{"cobol"},
	}, sessionCookies(e, admin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "E_LANG_NOT_FOUND", errorCode(t, rec))
}

func TestDeleteEngineInUse(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)
	client := seedClient(e)
	project := seedProject(e, "p1", client.ID)
	seedFuzzer(e, "f1", project.ID)

	rec := e.do(t, http.MethodDelete, "/api/v1/admin/engines/libfuzzer", nil, sessionCookies(e, admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "E_ENGINE_IN_USE_BY", errorCode(t, rec))
}

func TestDeleteLangInUse(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)
	client := seedClient(e)
	project := seedProject(e, "p1", client.ID)
	seedFuzzer(e, "f1", project.ID)

	rec := e.do(t, http.MethodDelete, "/api/v1/admin/langs/cpp", nil, sessionCookies(e, admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "E_LANG_IN_USE_BY", errorCode(t, rec))
}

func TestDeleteUnusedLang(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodDelete, "/api/v1/admin/langs/cpp", nil, sessionCookies(e, admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, e.fake.Langs, "cpp")
}

func TestCreateIntegrationType(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/integration_types", map[string]interface{}{
		"display_name": "Jira", "two_way": true,
	}, sessionCookies(e, admin))
	require.Equal(t, http.StatusCreated, rec.Code)

	var it model.IntegrationType
	decodeJSON(t, rec, &it)
	assert.True(t, it.TwoWay)
	assert.NotEmpty(t, it.ID)
}

func TestAdminCreatePool(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)
	client := seedClient(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/pools", map[string]interface{}{
		"name": "shared", "user_id": client.ID,
		"node_group": map[string]interface{}{
			"type": "cloud", "node_cpu": 8000, "node_ram": 16384, "node_count": 2,
		},
	}, sessionCookies(e, admin))
	require.Equal(t, http.StatusCreated, rec.Code)

	var pool model.Pool
	decodeJSON(t, rec, &pool)
	assert.Equal(t, client.ID, pool.UserID)
}

func TestAdminCreatePoolForAdminOwner(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/pools", map[string]interface{}{
		"name": "shared", "user_id": admin.ID,
		"node_group": map[string]interface{}{
			"type": "cloud", "node_cpu": 8000, "node_ram": 16384, "node_count": 2,
		},
	}, sessionCookies(e, admin))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "E_CLIENT_ACCOUNT_REQUIRED", errorCode(t, rec))
}

func TestAdminCreatePoolWithoutOwner(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)

	rec := e.do(t, http.MethodPost, "/api/v1/admin/pools", map[string]interface{}{
		"name": "shared",
	}, sessionCookies(e, admin))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "E_VALIDATION_FAILED", errorCode(t, rec))
}

func TestAdminListPoolsFiltersByUser(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)
	client := seedClient(e)
	other := seedUser(e, "other", false, false)
	seedPool(e, "pool1", client.ID)
	seedPool(e, "pool2", other.ID)
	cookies := sessionCookies(e, admin)

	rec := e.do(t, http.MethodGet, "/api/v1/admin/pools?user_id="+client.ID, nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var pools []model.Pool
	decodeJSON(t, rec, &pools)
	require.Len(t, pools, 1)
	assert.Equal(t, "pool1", pools[0].ID)

	rec = e.do(t, http.MethodGet, "/api/v1/admin/pools", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	pools = nil
	decodeJSON(t, rec, &pools)
	assert.Len(t, pools, 2)
}

func TestAdminDeletePool(t *testing.T) {
	e := newTestEnv(t)
	admin := seedAdmin(e)
	client := seedClient(e)
	seedPool(e, "pool1", client.ID)

	rec := e.do(t, http.MethodDelete, "/api/v1/admin/pools/pool1", nil, sessionCookies(e, admin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, e.pools.pools, "pool1")
}
