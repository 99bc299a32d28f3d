package handlers

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicapp/internal/config"
	"civicapp/internal/middleware"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/storage"
	"civicapp/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) CreateReport(ctx context.Context, ownerID string, input models.NewReport) (*models.Report, error) {
	args := m.Called(ctx, ownerID, input)
	report, _ := args.Get(0).(*models.Report)
	return report, args.Error(1)
}

func (m *MockReportService) GetReport(ctx context.Context, reportID, requesterID string) (*models.Report, error) {
	args := m.Called(ctx, reportID, requesterID)
	report, _ := args.Get(0).(*models.Report)
	return report, args.Error(1)
}

func (m *MockReportService) UpdateReport(ctx context.Context, reportID, requesterID string, update models.ReportUpdate) (*models.Report, error) {
	args := m.Called(ctx, reportID, requesterID, update)
	report, _ := args.Get(0).(*models.Report)
	return report, args.Error(1)
}

func (m *MockReportService) DeleteReport(ctx context.Context, reportID, requesterID string) error {
	return m.Called(ctx, reportID, requesterID).Error(0)
}

func (m *MockReportService) SetStatus(ctx context.Context, reportID string, change models.StatusChange) (*models.Report, error) {
	args := m.Called(ctx, reportID, change)
	report, _ := args.Get(0).(*models.Report)
	return report, args.Error(1)
}

type MockEngagementService struct {
	mock.Mock
}

func (m *MockEngagementService) AddVote(ctx context.Context, reportID, userID string) (int, error) {
	args := m.Called(ctx, reportID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockEngagementService) AddComment(ctx context.Context, reportID, userID, text string) (*models.Comment, error) {
	args := m.Called(ctx, reportID, userID, text)
	comment, _ := args.Get(0).(*models.Comment)
	return comment, args.Error(1)
}

func (m *MockEngagementService) ListComments(ctx context.Context, reportID string) (iter.Seq2[models.Comment, error], error) {
	args := m.Called(ctx, reportID)
	seq, _ := args.Get(0).(iter.Seq2[models.Comment, error])
	return seq, args.Error(1)
}

func (m *MockEngagementService) CountVotes(ctx context.Context, reportID string) (int, error) {
	args := m.Called(ctx, reportID)
	return args.Int(0), args.Error(1)
}

func (m *MockEngagementService) CountVotesBulk(ctx context.Context, reportIDs []string) (map[string]int, error) {
	args := m.Called(ctx, reportIDs)
	counts, _ := args.Get(0).(map[string]int)
	return counts, args.Error(1)
}

type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*models.DashboardStats)
	return stats, args.Error(1)
}

func (m *MockStatsService) ListReports(ctx context.Context, query models.ReportListQuery) (*models.ReportPage, error) {
	args := m.Called(ctx, query)
	page, _ := args.Get(0).(*models.ReportPage)
	return page, args.Error(1)
}

func (m *MockStatsService) ListPublicReports(ctx context.Context, filter models.ReportFilter) ([]models.EnrichedReport, error) {
	args := m.Called(ctx, filter)
	reports, _ := args.Get(0).([]models.EnrichedReport)
	return reports, args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CreateUser(ctx context.Context, name, email, mobile string, isAdmin bool) (*models.User, error) {
	args := m.Called(ctx, name, email, mobile, isAdmin)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

func (m *MockUserService) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	return m.Called(ctx, id, isAdmin).Error(0)
}

func (m *MockUserService) IsAdmin(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type savedImage struct {
	filename    string
	contentType string
	body        string
}

type fakeImageStore struct {
	saved []savedImage
	err   error
}

func (f *fakeImageStore) Save(_ context.Context, filename, contentType string, body io.Reader, _ int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.saved = append(f.saved, savedImage{filename: filename, contentType: contentType, body: string(data)})
	return "https://images.test/" + filename, nil
}

type testServer struct {
	router     *gin.Engine
	reports    *MockReportService
	engagement *MockEngagementService
	stats      *MockStatsService
	users      *MockUserService
	images     *fakeImageStore
	verifier   *middleware.TokenVerifier
	cfg        *config.Config
}

type serverOption func(*serverSetup)

type serverSetup struct {
	withoutImages bool
	worker        *worker.Worker
}

func withoutImageStore() serverOption {
	return func(s *serverSetup) { s.withoutImages = true }
}

func withWorker(w *worker.Worker) serverOption {
	return func(s *serverSetup) { s.worker = w }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	setup := &serverSetup{}
	for _, opt := range opts {
		opt(setup)
	}

	cfg := &config.Config{
		IsTest: true,
		Auth:   config.AuthConfig{JWTSecret: "handler-test-secret", Issuer: "civic-test"},
	}
	cfg.ApplyDefaults()

	ts := &testServer{
		reports:    &MockReportService{},
		engagement: &MockEngagementService{},
		stats:      &MockStatsService{},
		users:      &MockUserService{},
		images:     &fakeImageStore{},
		verifier:   middleware.NewTokenVerifier(cfg.Auth),
		cfg:        cfg,
	}

	var images storage.ImageStore
	if !setup.withoutImages {
		images = ts.images
	}

	ts.router = NewRouter(cfg, ts.reports, ts.engagement, ts.stats, ts.users, images, ts.verifier, setup.worker, observability.NewNopLogger())

	t.Cleanup(func() {
		gin.SetMode(gin.TestMode)
		ts.reports.AssertExpectations(t)
		ts.engagement.AssertExpectations(t)
		ts.stats.AssertExpectations(t)
		ts.users.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := ts.verifier.Issue(userID, "Tester", role, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}
