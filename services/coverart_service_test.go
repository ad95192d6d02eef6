package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorCover_DisabledWithoutR2(t *testing.T) {
	var downloads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
	}))
	defer srv.Close()

	svc := NewCoverArtService(NewFetchPool())
	_, err := svc.MirrorCover(context.Background(), ProviderSteam, "220", "Half-Life 2", srv.URL+"/header.jpg")
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&downloads), "without R2 the source is never even downloaded")
}

func TestCoverKey(t *testing.T) {
	assert.Equal(t, "covers/steam/half-life-2-220.jpg",
		coverKey(ProviderSteam, "220", "Half-Life 2", "https://cdn.example/apps/220/header.jpg"))
	assert.Equal(t, "covers/psn/bloodborne-npwr001.png",
		coverKey(ProviderPSN, "NPWR001", "Bloodborne", "https://img.example/bb.png?v=2"))
	// unusable extensions fall back to .jpg
	assert.Equal(t, "covers/epic/fortnite-cat-1.jpg",
		coverKey(ProviderEpic, "cat-1", "Fortnite", "https://img.example/cover"))
}
