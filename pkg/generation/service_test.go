package generation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/credits"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeLedger struct {
	balance int
	debits  int
	refunds int
}

func (f *fakeLedger) TryDebit(ctx context.Context, userID, kind string) (int, error) {
	if f.balance <= 0 {
		return 0, credits.ErrInsufficientCredits
	}
	f.balance--
	f.debits++
	return f.balance, nil
}

func (f *fakeLedger) Refund(ctx context.Context, userID, kind string) error {
	f.balance++
	f.refunds++
	return nil
}

type fakeProvider struct {
	urls     []string
	err      error
	requests []map[string]interface{}
}

func (f *fakeProvider) Run(ctx context.Context, model string, input map[string]interface{}) ([]string, error) {
	f.requests = append(f.requests, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.urls, nil
}

type fakeObjectStore struct {
	putKeys []string
	removed []string
}

func (f *fakeObjectStore) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	io.Copy(io.Discard, reader)
	f.putKeys = append(f.putKeys, key)
	return nil
}

func (f *fakeObjectStore) SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://storage.example.com/" + key + "?signed=1", nil
}

func (f *fakeObjectStore) Remove(ctx context.Context, bucket, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

type fakeImageStore struct {
	images []Image
	nextID int64
}

func (f *fakeImageStore) Create(ctx context.Context, image *Image) error {
	f.nextID++
	image.ID = f.nextID
	f.images = append(f.images, *image)
	return nil
}

func (f *fakeImageStore) ListByUser(ctx context.Context, userID string, limit int) ([]Image, error) {
	return f.images, nil
}

func (f *fakeImageStore) Delete(ctx context.Context, userID string, id int64) (*Image, error) {
	for i, image := range f.images {
		if image.ID == id {
			f.images = append(f.images[:i], f.images[i+1:]...)
			return &image, nil
		}
	}
	return nil, ErrImageNotFound
}

func validInput() GenerateInput {
	return GenerateInput{
		Model:             "black-forest-labs/flux-schnell",
		Prompt:            "studio portrait, soft light",
		Guidance:          3.5,
		NumOutputs:        1,
		AspectRatio:       "1:1",
		OutputFormat:      "webp",
		OutputQuality:     90,
		NumInferenceSteps: 28,
	}
}

func TestGenerateStoresOutputAndDebitsOnce(t *testing.T) {
	outputs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("binary-image-data"))
	}))
	defer outputs.Close()

	ledger := &fakeLedger{balance: 3}
	provider := &fakeProvider{urls: []string{outputs.URL + "/out.webp"}}
	objects := &fakeObjectStore{}
	repo := &fakeImageStore{}
	s := NewService(repo, provider, ledger, objects, outputs.Client(), "generated-images", time.Hour)

	images, err := s.Generate(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if ledger.debits != 1 || ledger.refunds != 0 {
		t.Fatalf("expected one debit and no refunds, got debits=%d refunds=%d", ledger.debits, ledger.refunds)
	}
	if len(images) != 1 {
		t.Fatalf("expected one stored image, got %d", len(images))
	}
	if images[0].Width != 1024 || images[0].Height != 1024 {
		t.Fatalf("unexpected dimensions %dx%d", images[0].Width, images[0].Height)
	}
	if len(objects.putKeys) != 1 || !strings.HasPrefix(objects.putKeys[0], "user-1/image_") {
		t.Fatalf("unexpected object key %v", objects.putKeys)
	}
	if images[0].URL == "" {
		t.Fatal("expected signed gallery URL")
	}
}

func TestGenerateRejectsWithoutCredits(t *testing.T) {
	ledger := &fakeLedger{balance: 0}
	provider := &fakeProvider{}
	s := NewService(&fakeImageStore{}, provider, ledger, &fakeObjectStore{}, http.DefaultClient, "generated-images", time.Hour)

	_, err := s.Generate(context.Background(), "user-1", validInput())
	if !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if len(provider.requests) != 0 {
		t.Fatal("provider must not run without a debit")
	}
}

func TestGenerateRefundsOnProviderFailure(t *testing.T) {
	ledger := &fakeLedger{balance: 3}
	provider := &fakeProvider{err: errors.New("model cold start timeout")}
	s := NewService(&fakeImageStore{}, provider, ledger, &fakeObjectStore{}, http.DefaultClient, "generated-images", time.Hour)

	if _, err := s.Generate(context.Background(), "user-1", validInput()); err == nil {
		t.Fatal("expected generation error")
	}
	if ledger.refunds != 1 || ledger.balance != 3 {
		t.Fatalf("expected compensating refund, got refunds=%d balance=%d", ledger.refunds, ledger.balance)
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	ledger := &fakeLedger{balance: 3}
	s := NewService(&fakeImageStore{}, &fakeProvider{}, ledger, &fakeObjectStore{}, http.DefaultClient, "generated-images", time.Hour)

	input := validInput()
	input.Prompt = ""
	if _, err := s.Generate(context.Background(), "user-1", input); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if ledger.debits != 0 {
		t.Fatal("invalid input must not debit")
	}
}

func TestGeneratePinsProviderParameters(t *testing.T) {
	outputs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("binary-image-data"))
	}))
	defer outputs.Close()

	provider := &fakeProvider{urls: []string{outputs.URL + "/out.webp"}}
	s := NewService(&fakeImageStore{}, provider, &fakeLedger{balance: 1}, &fakeObjectStore{}, outputs.Client(), "generated-images", time.Hour)

	if _, err := s.Generate(context.Background(), "user-1", validInput()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	req := provider.requests[0]
	if req["megapixels"] != "1" {
		t.Fatalf("expected megapixels pinned to 1, got %v", req["megapixels"])
	}
	if req["prompt_strength"] != 0.8 {
		t.Fatalf("expected prompt strength 0.8, got %v", req["prompt_strength"])
	}
	if req["go_fast"] != true {
		t.Fatalf("expected go_fast, got %v", req["go_fast"])
	}
}

func TestDeleteRemovesRowAndObject(t *testing.T) {
	repo := &fakeImageStore{}
	objects := &fakeObjectStore{}
	s := NewService(repo, &fakeProvider{}, &fakeLedger{}, objects, http.DefaultClient, "generated-images", time.Hour)

	repo.Create(context.Background(), &Image{UserID: "user-1", ImageName: "image_x.webp"})

	if err := s.Delete(context.Background(), "user-1", 1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(repo.images) != 0 {
		t.Fatal("expected row removed")
	}
	if len(objects.removed) != 1 || objects.removed[0] != "user-1/image_x.webp" {
		t.Fatalf("unexpected object removal %v", objects.removed)
	}
}

func TestAspectDimensions(t *testing.T) {
	cases := map[string][2]int{
		"1:1":  {1024, 1024},
		"16:9": {1344, 768},
		"9:16": {768, 1344},
		"4:3":  {1152, 896},
		"3:4":  {896, 1152},
		"":     {1024, 1024},
	}
	for ratio, want := range cases {
		w, h := aspectDimensions(ratio)
		if w != want[0] || h != want[1] {
			t.Errorf("aspectDimensions(%q) = %dx%d, want %dx%d", ratio, w, h, want[0], want[1])
		}
	}
}
