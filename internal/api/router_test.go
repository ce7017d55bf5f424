package api

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/multiguard/internal/auth"
)

func TestNewRouterRequiresDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, err := NewRouter(Dependencies{})
	require.EqualError(t, err, "auth manager must be provided")
}

func TestHomeRouteIsRelativeToPrefix(t *testing.T) {
	guards := auth.DefaultGuards()
	want := map[auth.GuardName]string{
		auth.GuardUser:   "/dashboard",
		auth.GuardAdmin:  "",
		auth.GuardSeller: "",
	}
	for _, guard := range guards {
		require.Equal(t, want[guard.Name], homeRoute(guard), string(guard.Name))
	}
}
