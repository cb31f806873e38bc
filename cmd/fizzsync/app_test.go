package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp_LocalOnly(t *testing.T) {
	// Arrange
	cfg := config.Default()
	cfg.Cache.Store = config.StoreLRU
	ctx := context.Background()

	// Act
	a, err := newApp(ctx, cfg, zerolog.Nop())

	// Assert
	require.NoError(t, err)
	defer a.close(ctx)
	assert.NotNil(t, a.client)
	assert.Nil(t, a.publisher, "no topic configured")
	assert.Nil(t, a.listener, "no subscription configured")
	assert.Nil(t, a.recorder, "no activity sink configured")
}

func TestNewApp_ClosesClientsOnFailure(t *testing.T) {
	// Arrange: the emulator host lets the Firestore client build offline, and
	// the empty collection then fails the store.
	t.Setenv("FIRESTORE_EMULATOR_HOST", "localhost:8915")
	cfg := config.Default()
	cfg.ProjectID = "fizz-test"
	cfg.Cache.Store = config.StoreFirestore
	cfg.Cache.Firestore.Collection = ""
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)

	// Act
	a, err := newApp(context.Background(), cfg, logger)

	// Assert
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, logs.String(), `"client":"firestore"`)
	assert.Contains(t, logs.String(), "Closed cloud client.")
}

func TestNewToggle_UnknownRelation(t *testing.T) {
	a, err := newApp(context.Background(), config.Default(), zerolog.Nop())
	require.NoError(t, err)
	defer a.close(context.Background())

	_, err = newToggle(context.Background(), a.client, nil, "bookmark", 1, nil)

	assert.ErrorContains(t, err, `unknown relation "bookmark"`)
}

type stuckToggle struct{}

func (stuckToggle) Value() bool       { return false }
func (stuckToggle) ServerValue() bool { return false }
func (stuckToggle) Count() int        { return 0 }
func (stuckToggle) IsPending() bool   { return true }
func (stuckToggle) Click()            {}
func (stuckToggle) Close()            {}

func TestWaitSettled_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := waitSettled(ctx, stuckToggle{})

	assert.Error(t, err)
}
