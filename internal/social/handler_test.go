package social_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/securesteps/auth-service/internal/auth/domain"
	"github.com/securesteps/auth-service/internal/auth/dto"
	"github.com/securesteps/auth-service/internal/auth/handler"
	"github.com/securesteps/auth-service/internal/auth/service"
	"github.com/securesteps/auth-service/internal/mocks"
	"github.com/securesteps/auth-service/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	callerID = "1b4e28ba-2fa1-41d2-883f-0016d3cca427"
	targetID = "6fa459ea-ee8a-4ca4-894e-db77e160355e"
)

func newSocialApp(t *testing.T) (*fiber.App, *fixture) {
	t.Helper()
	f := newFixture(t)

	sessions := mocks.NewMockSessionManager(gomock.NewController(t))
	sessions.EXPECT().Validate(gomock.Any(), "token").AnyTimes().
		Return(&service.JWTCustomClaims{UserID: callerID, Role: domain.RoleStudent, TokenType: service.TokenTypeAccess}, nil)
	mw := handler.NewMiddleware(sessions, handler.CookieConfig{AccessTTL: time.Hour, RefreshTTL: time.Hour})

	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler(false)})
	social.RegisterRoutes(app.Group("/api/v1"), social.NewHandler(f.svc), mw.RequireAuth())
	return app, f
}

func call(t *testing.T, app *fiber.App, method, path string) (int, dto.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body dto.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHandler_Follow(t *testing.T) {
	app, f := newSocialApp(t)
	f.inTx()
	f.repo.EXPECT().UserExists(gomock.Any(), targetID).Return(true, nil)
	f.repo.EXPECT().InsertFollow(gomock.Any(), callerID, targetID, fixedNow).Return(true, nil)
	f.repo.EXPECT().AdjustFollowCounts(gomock.Any(), callerID, targetID, 1).Return(nil)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/users/"+targetID+"/follow")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, body.Success)
}

func TestHandler_FollowErrors(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		app, _ := newSocialApp(t)
		status, _ := call(t, app, fiber.MethodPost, "/api/v1/users/"+callerID+"/follow")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("duplicate", func(t *testing.T) {
		app, f := newSocialApp(t)
		f.inTx()
		f.repo.EXPECT().UserExists(gomock.Any(), targetID).Return(true, nil)
		f.repo.EXPECT().InsertFollow(gomock.Any(), callerID, targetID, fixedNow).Return(false, nil)

		status, _ := call(t, app, fiber.MethodPost, "/api/v1/users/"+targetID+"/follow")
		assert.Equal(t, fiber.StatusConflict, status)
	})

	t.Run("not a uuid", func(t *testing.T) {
		app, _ := newSocialApp(t)
		status, _ := call(t, app, fiber.MethodPost, "/api/v1/users/bob/follow")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})
}

func TestHandler_Unfollow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		app, f := newSocialApp(t)
		f.inTx()
		f.repo.EXPECT().DeleteFollow(gomock.Any(), callerID, targetID).Return(true, nil)
		f.repo.EXPECT().AdjustFollowCounts(gomock.Any(), callerID, targetID, -1).Return(nil)
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		status, _ := call(t, app, fiber.MethodDelete, "/api/v1/users/"+targetID+"/follow")
		assert.Equal(t, fiber.StatusOK, status)
	})

	t.Run("not following", func(t *testing.T) {
		app, f := newSocialApp(t)
		f.inTx()
		f.repo.EXPECT().DeleteFollow(gomock.Any(), callerID, targetID).Return(false, nil)

		status, _ := call(t, app, fiber.MethodDelete, "/api/v1/users/"+targetID+"/follow")
		assert.Equal(t, fiber.StatusNotFound, status)
	})
}

func TestHandler_Lists(t *testing.T) {
	t.Run("followers with paging", func(t *testing.T) {
		app, f := newSocialApp(t)
		f.repo.EXPECT().UserExists(gomock.Any(), targetID).Return(true, nil)
		f.repo.EXPECT().ListFollowers(gomock.Any(), targetID, 5, 10).
			Return([]social.Connection{{UserID: callerID, Username: "alice", FollowedAt: fixedNow}}, nil)

		status, body := call(t, app, fiber.MethodGet, "/api/v1/users/"+targetID+"/followers?limit=5&offset=10")
		require.Equal(t, fiber.StatusOK, status)

		raw, err := json.Marshal(body.Data)
		require.NoError(t, err)
		var conns []social.Connection
		require.NoError(t, json.Unmarshal(raw, &conns))
		require.Len(t, conns, 1)
		assert.Equal(t, "alice", conns[0].Username)
	})

	t.Run("following of unknown user", func(t *testing.T) {
		app, f := newSocialApp(t)
		f.repo.EXPECT().UserExists(gomock.Any(), targetID).Return(false, nil)

		status, _ := call(t, app, fiber.MethodGet, "/api/v1/users/"+targetID+"/following")
		assert.Equal(t, fiber.StatusNotFound, status)
	})

	t.Run("bad paging", func(t *testing.T) {
		app, _ := newSocialApp(t)
		status, _ := call(t, app, fiber.MethodGet, "/api/v1/users/"+targetID+"/following?limit=ten")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})
}
