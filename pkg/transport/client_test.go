package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/go-fizzgrid/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestClient(t *testing.T, srv *httptest.Server) *transport.Client {
	t.Helper()
	cfg := transport.DefaultConfig()
	cfg.BaseURL = srv.URL
	client, err := transport.NewClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	return client
}

type drink struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
}

func TestClient_Get(t *testing.T) {
	t.Run("Decodes a JSON body", func(t *testing.T) {
		// Arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/drinks/drink/7/", r.URL.Path)
			assert.Equal(t, "cola", r.URL.Query().Get("search"))
			assert.Empty(t, r.Cookies(), "anonymous reads carry no cookies")
			_, _ = io.WriteString(w, `{"id":7,"product_name":"Fizz"}`)
		}))
		defer srv.Close()
		client := newTestClient(t, srv)
		client.SetCookie("sessionid", "secret")

		// Act
		var got drink
		err := client.Get(context.Background(), "drinks/drink/7/", url.Values{"search": {"cola"}}, &got)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, drink{ID: 7, ProductName: "Fizz"}, got)
	})

	t.Run("Non-2xx surfaces the detail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Drink not found"}`)
		}))
		defer srv.Close()
		client := newTestClient(t, srv)

		err := client.Get(context.Background(), "drinks/drink/9/", nil, &drink{})

		var apiErr *transport.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "Drink not found", apiErr.Error())
		assert.True(t, transport.IsStatus(err, http.StatusNotFound))
	})

	t.Run("Public 500 is masked", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"traceback leaked"}`)
		}))
		defer srv.Close()
		client := newTestClient(t, srv)

		err := client.Get(context.Background(), "drinks/", nil, nil)

		require.Error(t, err)
		assert.Equal(t, transport.DefaultErrorDetail, err.Error())
	})

	t.Run("Non-JSON error body falls back to the default detail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "<html>bad gateway</html>")
		}))
		defer srv.Close()
		client := newTestClient(t, srv)

		err := client.Get(context.Background(), "drinks/", nil, nil)

		assert.Equal(t, transport.DefaultErrorDetail, err.Error())
	})
}

func TestClient_Send(t *testing.T) {
	t.Run("Sends the anti-forgery header, cookies and multipart body", func(t *testing.T) {
		// Arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "token-123", r.Header.Get("X-CSRFToken"))
			session, err := r.Cookie("sessionid")
			require.NoError(t, err)
			assert.Equal(t, "abc", session.Value)

			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "alice", r.FormValue("username"))
			_, header, err := r.FormFile("image")
			require.NoError(t, err)
			assert.Equal(t, "me.png", header.Filename)

			_, _ = io.WriteString(w, `{"id":1,"product_name":"ok"}`)
		}))
		defer srv.Close()
		client := newTestClient(t, srv)
		client.SetCookie("csrftoken", "token-123")
		client.SetCookie("sessionid", "abc")

		form := transport.NewForm().
			Set("username", "alice").
			SetIfNotEmpty("email", "").
			AddFile("image", "me.png", []byte{0x89, 0x50})

		// Act
		var got drink
		err := client.Send(context.Background(), http.MethodPost, "profiles/login/", form, &got)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
	})

	t.Run("Preconditions fail before any request", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()
		client := newTestClient(t, srv)

		err := client.Send(context.Background(), http.MethodPost, "reviews/review/1/like/", nil, nil)
		assert.ErrorIs(t, err, transport.ErrMissingCSRFToken)

		client.SetCookie("csrftoken", "t")
		err = client.Send(context.Background(), http.MethodPatch, "reviews/review/1/like/", nil, nil)
		assert.ErrorIs(t, err, transport.ErrInvalidMethod)

		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("Credentialed failures keep the server detail on 500", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"Could not save favorite"}`)
		}))
		defer srv.Close()
		client := newTestClient(t, srv)
		client.SetCookie("csrftoken", "t")

		err := client.Send(context.Background(), http.MethodDelete, "drinks/drink/1/favorite/", nil, nil)

		assert.Equal(t, "Could not save favorite", err.Error())
	})
}

func TestClient_Tracing(t *testing.T) {
	// Arrange
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not logged in"}`)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	// Act
	err := client.GetWithCredentials(context.Background(), "profiles/profile/", nil, nil)

	// Assert
	require.Error(t, err)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "fizzgrid.api GET", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
