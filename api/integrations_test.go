package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

func jiraConfig() map[string]interface{} {
	return map[string]interface{}{
		"type": "jira",
		"jira": map[string]interface{}{
			"url": "https://jira.example.com", "project": "FUZZ",
			"username": "bot", "password": "hunter2", "issue_type": "Bug",
		},
	}
}

func integrationBase(e *testEnv) (*model.Project, string, []*http.Cookie) {
	client := seedClient(e)
	project := seedProject(e, "p1", client.ID)
	base := "/api/v1/users/" + client.ID + "/projects/" + project.ID + "/integrations"
	return project, base, sessionCookies(e, client)
}

func seedIntegration(e *testEnv, id, projectID string) *model.Integration {
	integration := &model.Integration{
		ID:        id,
		Rev:       "1",
		Kind:      model.KindIntegration,
		Name:      "tracker-" + id,
		ProjectID: projectID,
		Config: model.IntegrationConfig{
			Type: model.TrackerJira,
			Jira: &model.JiraConfig{URL: "https://jira.example.com", Project: "FUZZ", Password: "hunter2"},
		},
		Status:    model.IntegrationSucceeded,
		Enabled:   true,
		UpdateRev: "initial",
	}
	e.fake.Integrations[id] = integration
	return integration
}

func TestCreateIntegration(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)

	rec := e.do(t, http.MethodPost, base, map[string]interface{}{
		"name": "jira-main", "config": jiraConfig(),
	}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp model.IntegrationResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, project.ID, resp.ProjectID)
	assert.Equal(t, model.TrackerJira, resp.Type)
	assert.Equal(t, model.IntegrationInProgress, resp.Status)
	assert.True(t, resp.Enabled)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	// The matching reporter is asked to verify the saved credentials.
	require.Len(t, e.sender.sent, 1)
	assert.Equal(t, "reporter-jira", e.sender.sent[0].Queue)
	assert.Equal(t, queue.TypeCheckIntegration, e.sender.sent[0].Type)
	payload, ok := e.sender.sent[0].Payload.(queue.CheckIntegrationPayload)
	require.True(t, ok)
	assert.Equal(t, resp.ID, payload.IntegrationID)
	assert.NotEmpty(t, payload.UpdateRev)
}

func TestCreateIntegrationIncompleteConfig(t *testing.T) {
	e := newTestEnv(t)
	_, base, cookies := integrationBase(e)

	rec := e.do(t, http.MethodPost, base, map[string]interface{}{
		"name": "jira-main",
		"config": map[string]interface{}{
			"type": "jira",
			"jira": map[string]interface{}{"url": "https://jira.example.com"},
		},
	}, cookies)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "E_VALIDATION_FAILED", errorCode(t, rec))
	assert.Empty(t, e.sender.sent)
}

func TestCreateIntegrationUnknownTracker(t *testing.T) {
	e := newTestEnv(t)
	_, base, cookies := integrationBase(e)

	rec := e.do(t, http.MethodPost, base, map[string]interface{}{
		"name": "bz",
		"config": map[string]interface{}{
			"type": "bugzilla",
		},
	}, cookies)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "E_VALIDATION_FAILED", errorCode(t, rec))
}

func TestCreateIntegrationUnknownConfigID(t *testing.T) {
	e := newTestEnv(t)
	_, base, cookies := integrationBase(e)

	rec := e.do(t, http.MethodPost, base, map[string]interface{}{
		"name": "jira-main", "config": jiraConfig(), "config_id": "missing-type",
	}, cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "E_INTEGRATION_TYPE_NOT_FOUND", errorCode(t, rec))
}

func TestCreateIntegrationDuplicateName(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	existing := seedIntegration(e, "i1", project.ID)

	rec := e.do(t, http.MethodPost, base, map[string]interface{}{
		"name": existing.Name, "config": jiraConfig(),
	}, cookies)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "E_INTEGRATION_EXISTS", errorCode(t, rec))
}

func TestYouTrackIntegrationRoutesToItsReporter(t *testing.T) {
	e := newTestEnv(t)
	_, base, cookies := integrationBase(e)

	rec := e.do(t, http.MethodPost, base, map[string]interface{}{
		"name": "yt-main",
		"config": map[string]interface{}{
			"type": "youtrack",
			"youtrack": map[string]interface{}{
				"url": "https://yt.example.com", "project": "FUZZ", "token": "perm-token",
			},
		},
	}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, e.sender.sent, 1)
	assert.Equal(t, "reporter-youtrack", e.sender.sent[0].Queue)
}

func TestGetIntegrationStripsCredentials(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	integration := seedIntegration(e, "i1", project.ID)

	rec := e.do(t, http.MethodGet, base+"/"+integration.ID, nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "update_rev")
}

func TestPatchIntegrationRename(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	integration := seedIntegration(e, "i1", project.ID)

	rec := e.do(t, http.MethodPatch, base+"/"+integration.ID, map[string]interface{}{
		"name": "renamed",
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", e.fake.Integrations[integration.ID].Name)
	// A rename alone never re-checks credentials.
	assert.Empty(t, e.sender.sent)
}

func TestPatchIntegrationNewCredentialsTriggersRecheck(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	integration := seedIntegration(e, "i1", project.ID)

	rec := e.do(t, http.MethodPatch, base+"/"+integration.ID, map[string]interface{}{
		"config": jiraConfig(),
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	stored := e.fake.Integrations[integration.ID]
	assert.Equal(t, model.IntegrationInProgress, stored.Status)
	assert.NotEqual(t, "initial", stored.UpdateRev)

	require.Len(t, e.sender.sent, 1)
	payload, ok := e.sender.sent[0].Payload.(queue.CheckIntegrationPayload)
	require.True(t, ok)
	assert.Equal(t, stored.UpdateRev, payload.UpdateRev)
}

func TestDisableIntegration(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	integration := seedIntegration(e, "i1", project.ID)

	rec := e.do(t, http.MethodPatch, base+"/"+integration.ID, map[string]interface{}{
		"enabled": false,
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, e.fake.Integrations[integration.ID].Enabled)
}

func TestDeleteRestoreIntegration(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	integration := seedIntegration(e, "i1", project.ID)

	rec := e.do(t, http.MethodDelete, base+"/"+integration.ID, nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	now := time.Now().UTC()
	assert.Equal(t, model.RemovalTrashBin, e.fake.Integrations[integration.ID].RemovalStateAt(now))

	// Deleting again is refused while it sits in the trash bin.
	rec = e.do(t, http.MethodDelete, base+"/"+integration.ID, nil, cookies)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "E_INTEGRATION_DELETED", errorCode(t, rec))

	rec = e.do(t, http.MethodDelete, base+"/"+integration.ID+"?action=Restore", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RemovalPresent, e.fake.Integrations[integration.ID].RemovalStateAt(time.Now().UTC()))
}

func TestListIntegrations(t *testing.T) {
	e := newTestEnv(t)
	project, base, cookies := integrationBase(e)
	seedIntegration(e, "i1", project.ID)
	seedIntegration(e, "i2", "other-project")

	rec := e.do(t, http.MethodGet, base, nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []model.IntegrationResponse
	decodeJSON(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "i1", listed[0].ID)
}
