package detector

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detectRequest() Request {
	return Request{ItemID: uuid.New(), RentalID: uuid.New(), Before: []byte("before"), After: []byte("after")}
}

func TestDetectPostsBothImages(t *testing.T) {
	req := detectRequest()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, req.ItemID.String(), r.FormValue("item_id"))
		assert.Equal(t, req.RentalID.String(), r.FormValue("rental_id"))

		before, _, err := r.FormFile("before")
		require.NoError(t, err)
		data, _ := io.ReadAll(before)
		assert.Equal(t, "before", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"damaged":true,"info":{"score":0.91,"region":"left"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	result, err := client.Detect(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Damaged)
	assert.Equal(t, "left", result.Info["region"])
}

func TestDetectNonOKIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Detect(context.Background(), detectRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDetectorUnavailable))
}

func TestDetectTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Detect(context.Background(), detectRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDetectorUnavailable))
}

func TestDetectMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Detect(context.Background(), detectRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDetectorUnavailable))
}

func TestDetectRequiresImages(t *testing.T) {
	client, err := NewClient("http://detector.test")
	require.NoError(t, err)

	_, err = client.Detect(context.Background(), Request{Before: []byte("x")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, errURLRequired)
}
