package services

import (
	"context"
	"database/sql"
	"iter"
	"sort"
	"sync"
	"time"

	"civicapp/internal/config"
	"civicapp/internal/models"
	"civicapp/internal/observability"
	"civicapp/internal/queue"
	contextutils "civicapp/internal/utils"

	"github.com/stretchr/testify/mock"
)

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Dashboard.CacheTTL = 5 * time.Minute
	cfg.Server.AppBaseURL = "http://localhost:3000"
	return cfg
}

func newTestLogger() *observability.Logger {
	return observability.NewNopLogger()
}

// fakeReportRepo is an in-memory ReportRepository with a deterministic clock
type fakeReportRepo struct {
	mu      sync.Mutex
	reports map[string]*models.Report
	users   map[string]models.User
	votes   func(reportID string) int
	now     time.Time

	statusCountCalls int
	readErrs         []error
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{
		reports: make(map[string]*models.Report),
		users:   make(map[string]models.User),
		now:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeReportRepo) tick() time.Time {
	f.now = f.now.Add(time.Minute)
	return f.now
}

// nextReadErr pops an injected failure for the aggregate reads
func (f *fakeReportRepo) nextReadErr() error {
	if len(f.readErrs) == 0 {
		return nil
	}
	err := f.readErrs[0]
	f.readErrs = f.readErrs[1:]
	return err
}

func (f *fakeReportRepo) Create(_ context.Context, report *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[report.UserID]; len(f.users) > 0 && !ok {
		return contextutils.WrapError(contextutils.ErrUnauthorized, "caller is not a registered user")
	}
	report.CreatedAt = f.tick()
	report.UpdatedAt = report.CreatedAt
	stored := *report
	f.reports[report.ID] = &stored
	return nil
}

func (f *fakeReportRepo) GetByID(_ context.Context, id string) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	out := *r
	return &out, nil
}

func (f *fakeReportRepo) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.reports[id]
	return ok, nil
}

func (f *fakeReportRepo) UpdatePending(_ context.Context, id, ownerID string, update models.ReportUpdate) (*models.Report, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.reports[id]
	if !ok || current.UserID != ownerID || current.Status != models.StatusPending {
		return nil, false, nil
	}
	*current = update.ApplyTo(*current)
	current.UpdatedAt = f.tick()
	out := *current
	return &out, true, nil
}

func (f *fakeReportRepo) DeletePending(_ context.Context, id, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.reports[id]
	if !ok || current.UserID != ownerID || current.Status != models.StatusPending {
		return false, nil
	}
	delete(f.reports, id)
	return true, nil
}

func (f *fakeReportRepo) SetStatus(_ context.Context, id string, status models.ReportStatus, rejectReason sql.NullString) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.reports[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "report %s not found", id)
	}
	current.Status = status
	current.RejectReason = rejectReason
	current.UpdatedAt = f.tick()
	out := *current
	return &out, nil
}

func (f *fakeReportRepo) CountByStatus(_ context.Context) (map[models.ReportStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCountCalls++
	if err := f.nextReadErr(); err != nil {
		return nil, err
	}
	counts := make(map[models.ReportStatus]int)
	for _, r := range f.reports {
		counts[r.Status]++
	}
	return counts, nil
}

func (f *fakeReportRepo) AverageResolutionDays(_ context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	var n int
	for _, r := range f.reports {
		if r.Status == models.StatusFixed {
			total += r.UpdatedAt.Sub(r.CreatedAt).Hours() / 24
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

func (f *fakeReportRepo) CountByCategory(_ context.Context) ([]models.CategoryCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range f.reports {
		counts[r.Category]++
	}
	out := make([]models.CategoryCount, 0, len(counts))
	for category, n := range counts {
		out = append(out, models.CategoryCount{Category: category, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (f *fakeReportRepo) matching(filter models.ReportFilter) []models.Report {
	var out []models.Report
	for _, r := range f.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeReportRepo) Count(_ context.Context, filter models.ReportFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matching(filter)), nil
}

func (f *fakeReportRepo) List(_ context.Context, q models.ReportListQuery) ([]models.EnrichedReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.matching(q.Filter)
	if q.SortKey == models.SortByVotes && f.votes != nil {
		sort.SliceStable(all, func(i, j int) bool {
			if q.Direction == models.SortAsc {
				return f.votes(all[i].ID) < f.votes(all[j].ID)
			}
			return f.votes(all[i].ID) > f.votes(all[j].ID)
		})
	} else if q.Direction == models.SortAsc {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}

	items := []models.EnrichedReport{}
	for i := q.Offset(); i < len(all) && len(items) < q.PageSize; i++ {
		u := f.users[all[i].UserID]
		items = append(items, models.EnrichedReport{
			Report: all[i],
			Owner:  &models.ReportOwner{Name: u.Name, Email: u.Email},
		})
	}
	return items, nil
}

func (f *fakeReportRepo) ListAll(_ context.Context, filter models.ReportFilter) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matching(filter), nil
}

// fakeEngagementRepo enforces one vote per (user, report) under a mutex like the unique index would
type fakeEngagementRepo struct {
	mu       sync.Mutex
	reports  *fakeReportRepo
	votes    map[string]map[string]bool
	comments []models.Comment
	now      time.Time
}

func newFakeEngagementRepo(reports *fakeReportRepo) *fakeEngagementRepo {
	f := &fakeEngagementRepo{
		reports: reports,
		votes:   make(map[string]map[string]bool),
		now:     time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	reports.votes = f.voteCount
	return f
}

func (f *fakeEngagementRepo) voteCount(reportID string) int {
	return len(f.votes[reportID])
}

func (f *fakeEngagementRepo) AddVote(ctx context.Context, vote *models.Vote) error {
	if ok, _ := f.reports.Exists(ctx, vote.ReportID); !ok {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "report not found")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votes[vote.ReportID] == nil {
		f.votes[vote.ReportID] = make(map[string]bool)
	}
	if f.votes[vote.ReportID][vote.UserID] {
		return contextutils.WrapError(contextutils.ErrRecordExists, "user has already voted on this report")
	}
	f.votes[vote.ReportID][vote.UserID] = true
	vote.CreatedAt = f.now
	return nil
}

func (f *fakeEngagementRepo) CountVotes(_ context.Context, reportID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.votes[reportID]), nil
}

func (f *fakeEngagementRepo) CountVotesBulk(_ context.Context, reportIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(reportIDs))
	for _, id := range reportIDs {
		out[id] = len(f.votes[id])
	}
	return out, nil
}

func (f *fakeEngagementRepo) CountCommentsBulk(_ context.Context, reportIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(reportIDs))
	for _, id := range reportIDs {
		out[id] = 0
	}
	for _, c := range f.comments {
		if _, ok := out[c.ReportID]; ok {
			out[c.ReportID]++
		}
	}
	return out, nil
}

func (f *fakeEngagementRepo) AddComment(ctx context.Context, comment *models.Comment) error {
	if ok, _ := f.reports.Exists(ctx, comment.ReportID); !ok {
		return contextutils.WrapError(contextutils.ErrRecordNotFound, "report not found")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	comment.CreatedAt = f.now
	comment.AuthorName = f.reports.users[comment.UserID].Name
	f.comments = append(f.comments, *comment)
	return nil
}

func (f *fakeEngagementRepo) ListComments(_ context.Context, reportID string) iter.Seq2[models.Comment, error] {
	return func(yield func(models.Comment, error) bool) {
		f.mu.Lock()
		var matching []models.Comment
		for _, c := range f.comments {
			if c.ReportID == reportID {
				matching = append(matching, c)
			}
		}
		f.mu.Unlock()
		for i := len(matching) - 1; i >= 0; i-- {
			if !yield(matching[i], nil) {
				return
			}
		}
	}
}

// recordingNotifier captures lifecycle events
type recordingNotifier struct {
	mu       sync.Mutex
	received []string
	changed  []models.Report
}

func (n *recordingNotifier) NotifyReportReceived(_ context.Context, report *models.Report) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, report.ID)
}

func (n *recordingNotifier) NotifyStatusChanged(_ context.Context, report *models.Report) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, *report)
}

// MockAggregateCache is a testify mock of cache.AggregateCache
type MockAggregateCache struct {
	mock.Mock
}

func (m *MockAggregateCache) Get(ctx context.Context, key string) (*models.DashboardStats, bool, error) {
	args := m.Called(ctx, key)
	stats, _ := args.Get(0).(*models.DashboardStats)
	return stats, args.Bool(1), args.Error(2)
}

func (m *MockAggregateCache) Put(ctx context.Context, key string, stats *models.DashboardStats, ttl time.Duration) error {
	args := m.Called(ctx, key, stats, ttl)
	return args.Error(0)
}

func (m *MockAggregateCache) Invalidate(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockUserService is a testify mock of UserServiceInterface
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
	args := m.Called(ctx, id, isAdmin)
	return args.Error(0)
}

func (m *MockUserService) IsAdmin(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// capturePublisher records published tasks or fails every publish with err
type capturePublisher struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, task queue.Task) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *capturePublisher) Close() error { return nil }
