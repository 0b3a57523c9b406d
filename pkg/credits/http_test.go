package credits

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/aivisio/platform/pkg/common/config"
	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/aivisio/platform/pkg/common/models"
	"github.com/aivisio/platform/pkg/identity"
	"github.com/aivisio/platform/pkg/middleware"
	"github.com/gorilla/mux"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newCreditsRouter(repo *Repository) *mux.Router {
	router := mux.NewRouter()
	NewHandler(NewService(repo, config.Plan{})).Register(router)
	return router
}

func TestHandleGetWithoutClaims(t *testing.T) {
	repo, _ := newMockRepository(t)
	router := newCreditsRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/credits", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Error != "unauthorized" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestHandleGetReturnsBalance(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`SELECT \* FROM "credits" WHERE user_id = \$1`).
		WillReturnRows(balanceRows(2))
	router := newCreditsRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/credits", nil)
	req = middleware.WithUserClaims(req, &identity.Claims{Sub: "user-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool    `json:"success"`
		Data    Balance `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success envelope")
	}
	if resp.Data.ModelTrainingCount != 2 {
		t.Fatalf("expected 2 model trainings, got %d", resp.Data.ModelTrainingCount)
	}
}
