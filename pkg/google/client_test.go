package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.id")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nextPageToken")

		var body SearchTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Indiranagar hot chips", body.TextQuery)
		assert.Equal(t, 20, body.PageSize)
		assert.Equal(t, "en", body.LanguageCode)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchTextResponse{
			Places: []Place{
				{
					ID:               "ChIJ-1",
					DisplayName:      DisplayName{Text: "Chips Corner"},
					FormattedAddress: "12 CMH Road, Indiranagar",
					GoogleMapsURI:    "https://maps.google.com/?cid=1",
				},
			},
			NextPageToken: "page-2",
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{
		TextQuery:    "Indiranagar hot chips",
		PageSize:     20,
		LanguageCode: "en",
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "ChIJ-1", resp.Places[0].ID)
	assert.Equal(t, "Chips Corner", resp.Places[0].DisplayName.Text)
	assert.Equal(t, "page-2", resp.NextPageToken)
}

func TestSearchText_Pagination(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		var body SearchTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if body.PageToken == "" {
			_ = json.NewEncoder(w).Encode(SearchTextResponse{
				Places:        []Place{{ID: "place-1", DisplayName: DisplayName{Text: "First"}}},
				NextPageToken: "page-2-token",
			})
			return
		}
		assert.Equal(t, "page-2-token", body.PageToken)
		_ = json.NewEncoder(w).Encode(SearchTextResponse{
			Places: []Place{{ID: "place-2", DisplayName: DisplayName{Text: "Second"}}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	resp, err := client.SearchText(context.Background(), SearchTextRequest{TextQuery: "test"})
	require.NoError(t, err)
	assert.Equal(t, "place-1", resp.Places[0].ID)

	resp, err = client.SearchText(context.Background(), SearchTextRequest{TextQuery: "test", PageToken: resp.NextPageToken})
	require.NoError(t, err)
	assert.Equal(t, "place-2", resp.Places[0].ID)
	assert.Empty(t, resp.NextPageToken)
	assert.Equal(t, 2, callCount)
}

func TestSearchText_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{TextQuery: "nowhere"})

	require.NoError(t, err)
	assert.Empty(t, resp.Places)
	assert.Empty(t, resp.NextPageToken)
}

func TestSearchText_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{TextQuery: "test"})

	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestSearchText_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(ctx, SearchTextRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestPlaceDetails_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/ChIJ-1", r.URL.Path)
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nationalPhoneNumber")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "businessStatus")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "ChIJ-1",
			"displayName": {"text": "Chips Corner", "languageCode": "en"},
			"formattedAddress": "12 CMH Road, Indiranagar, Bengaluru",
			"nationalPhoneNumber": "098450 12345",
			"internationalPhoneNumber": "+91 98450 12345",
			"googleMapsUri": "https://maps.google.com/?cid=1",
			"location": {"latitude": 12.9784, "longitude": 77.6408},
			"businessStatus": "OPERATIONAL"
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	p, err := client.PlaceDetails(context.Background(), "ChIJ-1")

	require.NoError(t, err)
	assert.Equal(t, "Chips Corner", p.DisplayName.Text)
	assert.Equal(t, "098450 12345", p.NationalPhoneNumber)
	assert.Equal(t, StatusOperational, p.BusinessStatus)
	require.NotNil(t, p.Location)
	assert.InDelta(t, 12.9784, p.Location.Latitude, 0.0001)
}

func TestPlaceDetails_EmptyID(t *testing.T) {
	client := NewClient("test-key", WithBaseURL("http://unused.invalid"))
	_, err := client.PlaceDetails(context.Background(), "")
	assert.Error(t, err)
}

func TestPlaceDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).PlaceDetails(context.Background(), "gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestPlaceDetails_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).PlaceDetails(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
