package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tendant/island-photos/internal/app"
	"github.com/tendant/island-photos/internal/config"
	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/photos"
	"github.com/tendant/island-photos/internal/upload"
	"github.com/tendant/island-photos/pkg/schema"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []schema.ThumbnailLifecycleEvent
}

func (p *capturePublisher) PublishJSON(_ string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var evt schema.ThumbnailLifecycleEvent
	if err := json.Unmarshal(b, &evt); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func workerConfig() config.Config {
	return config.Config{
		RecordStore:    config.RecordStoreMemory,
		StorageBackend: config.StorageMemory,
		EventsSubject:  "islands.thumbnail.events",
		ThumbWidth:     64,
		ThumbHeight:    48,
		MaxImageBytes:  upload.MaxImageSizeBytes,
	}
}

func sourceJPEG(t *testing.T) []byte {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		m.Set(x, 50, color.RGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestJobHandlerAttachesThumbnail(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := workerConfig()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("open backends: %v", err)
	}
	store := backends.RecordStore(cfg, logger)
	svc := islands.NewService(store)

	it, err := svc.Create(ctx, islands.NewIsland{Name: "Raja Ampat"})
	if err != nil {
		t.Fatalf("create island: %v", err)
	}
	photo, err := backends.Uploads(cfg).StorePhoto(ctx, upload.Candidate{DeclaredName: "bay.jpg", DeclaredMimeType: "image/jpeg", Content: sourceJPEG(t)})
	if err != nil {
		t.Fatalf("store photo: %v", err)
	}
	if _, err := svc.SetPhoto(ctx, it.ID, photo); err != nil {
		t.Fatalf("set photo: %v", err)
	}

	payload, err := json.Marshal(photos.EventFromJob(photos.Job{ID: "job-1", IslandID: it.ID, Photo: *photo}))
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}

	pub := &capturePublisher{}
	handler := newJobHandler(cfg, backends, pub, logger, photos.NewMetrics(nil))
	handler(ctx, payload)

	got, err := svc.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("get island: %v", err)
	}
	if got.PhotoThumb == nil {
		t.Fatal("expected thumbnail to be attached")
	}
	if got.PhotoThumb.Name != "bay_thumb.jpg" {
		t.Fatalf("unexpected thumbnail name: %s", got.PhotoThumb.Name)
	}

	data, err := backends.Assets.Get(ctx, got.PhotoThumb.Key)
	if err != nil {
		t.Fatalf("read thumbnail: %v", err)
	}
	cfgImg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfgImg.Width != 64 || cfgImg.Height != 48 {
		t.Fatalf("unexpected thumbnail size: %dx%d", cfgImg.Width, cfgImg.Height)
	}

	if len(pub.events) != 2 || pub.events[1].Stage != schema.StageDone {
		t.Fatalf("unexpected lifecycle events: %+v", pub.events)
	}
}

func TestJobHandlerDropsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cfg := workerConfig()
	cfg.EventsSubject = ""

	backends, err := app.Open(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open backends: %v", err)
	}
	newJobHandler(cfg, backends, nil, logger, nil)(ctx, []byte(`{"island_id":"nope"}`))

	if !strings.Contains(logs.String(), "dropping malformed job") {
		t.Fatalf("expected malformed job warning, got %q", logs.String())
	}
}

func TestMetricsRouter(t *testing.T) {
	reg, metrics := app.Registry()
	metrics.Dropped.Inc()
	srv := httptest.NewServer(metricsRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "island_photos_thumbnail_queue_dropped_total 1") {
		t.Fatalf("metrics output missing counter: %s", body)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status: %d", resp.StatusCode)
	}
}
