package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/teamcollab/huddle/internal/domain"
)

func newTestBackend(t *testing.T, register func(*gin.Engine)) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewBackend(srv.URL, srv.Client())
}

func TestGetAuthToken(t *testing.T) {
	var gotIdentity string
	b := newTestBackend(t, func(r *gin.Engine) {
		r.GET("/api/video/token/:identity", func(c *gin.Context) {
			gotIdentity = c.Param("identity")
			c.JSON(http.StatusOK, gin.H{"token": "tok-123"})
		})
	})

	token, err := b.GetAuthToken(context.Background(), "Alice")
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
	require.Equal(t, "Alice", gotIdentity)
}

func TestGetAuthTokenServerAssignedIdentity(t *testing.T) {
	b := newTestBackend(t, func(r *gin.Engine) {
		r.GET("/api/video/token", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"token": "tok-assigned"})
		})
	})

	token, err := b.GetAuthToken(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "tok-assigned", token)
}

func TestListRoomsRoundTrip(t *testing.T) {
	b := newTestBackend(t, func(r *gin.Engine) {
		r.GET("/api/video/rooms", func(c *gin.Context) {
			c.JSON(http.StatusOK, []domain.NamedRoom{
				{ID: "1", Name: "general", ParticipantCount: 2},
			})
		})
	})

	rooms, err := b.ListRooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.NamedRoom{
		{ID: "1", Name: "general", ParticipantCount: 2},
	}, rooms)
}

func TestErrorsPropagateAsNetworkError(t *testing.T) {
	b := newTestBackend(t, func(r *gin.Engine) {
		r.GET("/api/video/rooms", func(c *gin.Context) {
			c.Status(http.StatusInternalServerError)
		})
	})

	_, err := b.ListRooms(context.Background())
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, "list rooms", netErr.Op)
}
