// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package browser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pliegos/pkg/types"
)

func testConfig() types.BrowserConfig {
	cfg := types.DefaultPipelineConfig().Browser
	cfg.Engine = types.EngineHTTP
	cfg.TabDelay = time.Millisecond
	cfg.MaxRetries = 1
	return cfg
}

func TestStaticOpenAndSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<div class="registro"><h3>Romance del prisionero</h3></div>`))
	}))
	defer ts.Close()

	p, err := New(context.Background(), testConfig(), log.New(io.Discard))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tabs, err := p.Open(ctx, []string{ts.URL + "/ok", ts.URL + "/gone"}, true)
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, 1, tabs[0].ID())
	assert.Equal(t, 2, tabs[1].ID())
	assert.Equal(t, ts.URL+"/ok", tabs[0].URL())

	require.NoError(t, tabs[0].WaitLoaded(ctx))
	require.NoError(t, tabs[0].Inject(ctx))
	doc, err := tabs[0].Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/ok", doc.URL())
	require.Len(t, doc.Find(".registro h3"), 1)

	require.NoError(t, tabs[1].WaitLoaded(ctx))
	err = tabs[1].Inject(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStaticSnapshotLatin1(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<div class=\"registro\"><h3>Relaci\xf3n del a\xf1o de la peste en Sevilla</h3></div>"))
	}))
	defer ts.Close()

	p := NewStatic(testConfig(), log.New(io.Discard))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tabs, err := p.Open(ctx, []string{ts.URL + "/busqueda"}, false)
	require.NoError(t, err)
	require.Len(t, tabs, 1)

	doc, err := tabs[0].Snapshot(ctx)
	require.NoError(t, err)
	titles := doc.Find(".registro h3")
	require.Len(t, titles, 1)
	assert.Equal(t, "Relación del año de la peste en Sevilla", titles[0].Text())
}

func TestStaticOpenRejectsRelativeURL(t *testing.T) {
	p := NewStatic(testConfig(), log.New(io.Discard))
	_, err := p.Open(context.Background(), []string{"/relative"}, false)
	assert.Error(t, err)
}

func TestStaticOpenCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.TabDelay = time.Hour
	p := NewStatic(cfg, log.New(io.Discard))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The first token is free; the second waits for the pacer.
	_, err := p.Open(ctx, []string{"http://127.0.0.1:1/a", "http://127.0.0.1:1/b"}, false)
	assert.Error(t, err)
}

func TestNewUnknownEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = "firefox"
	_, err := New(context.Background(), cfg, log.New(io.Discard))
	assert.Error(t, err)
}
