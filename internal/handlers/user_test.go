package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRequiresSession(t *testing.T) {
	api := newTestAPI(t, testDeps{})

	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		rec := api.do(t, jsonRequest(t, method, "/users/profile", map[string]any{}), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, method)
	}
}

func TestGetProfile(t *testing.T) {
	api := newTestAPI(t, testDeps{profiles: stubProfiles{
		profile: func(_ context.Context, id string) (types.Profile, error) {
			return types.Profile{
				User:                 testClient,
				Properties:           []types.Listing{},
				InterestedProperties: []types.Listing{{ID: "p-1"}},
			}, nil
		},
	}})

	rec := api.do(t, jsonRequest(t, http.MethodGet, "/users/profile", nil), &testClient)

	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[types.Profile](t, rec)
	assert.Equal(t, testClient.ID, profile.ID)
	require.Len(t, profile.InterestedProperties, 1)
	assert.Equal(t, "p-1", profile.InterestedProperties[0].ID)
}

func TestUpdateProfile(t *testing.T) {
	var got services.ProfileUpdate
	api := newTestAPI(t, testDeps{profiles: stubProfiles{
		update: func(_ context.Context, id string, update services.ProfileUpdate) (types.User, error) {
			got = update
			if update.Email != nil && *update.Email == "taken@example.com" {
				return types.User{}, errConflict
			}
			user := testClient
			user.Phone = *update.Phone
			return user, nil
		},
	}})

	rec := api.do(t, jsonRequest(t, http.MethodPatch, "/users/profile", map[string]any{"phone": "555-0199"}), &testClient)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "555-0199", decodeBody[types.User](t, rec).Phone)
	assert.Nil(t, got.FirstName)

	rec = api.do(t, jsonRequest(t, http.MethodPatch, "/users/profile", map[string]any{"email": "not-an-email"}), &testClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email must be a valid email address", errorMessage(t, rec))

	rec = api.do(t, jsonRequest(t, http.MethodPatch, "/users/profile", map[string]any{"email": "taken@example.com"}), &testClient)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteAccountClearsSession(t *testing.T) {
	var deleted string
	api := newTestAPI(t, testDeps{profiles: stubProfiles{
		delete: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}})

	rec := api.do(t, jsonRequest(t, http.MethodDelete, "/users/profile", nil), &testAgent)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User account deleted", decodeBody[MessageResponse](t, rec).Message)
	assert.Equal(t, testAgent.ID, deleted)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Negative(t, cookie.MaxAge)
}
