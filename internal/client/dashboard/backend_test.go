package dashboard_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/auth"
	"github.com/hitoshi/steadyleadflow/internal/handler"
	"github.com/hitoshi/steadyleadflow/internal/middleware"
	"github.com/hitoshi/steadyleadflow/internal/model"
)

// --- インメモリのAPIサーバー ---

const testPassword = "secret"

// backend は handler.NewRouter に渡すサービス群をメモリ上で実装する。
type backend struct {
	mu       sync.Mutex
	users    map[string]*model.User
	sessions map[string]*model.Session
	leads    []*model.Lead
	jobs     []*model.Job
	seq      int
}

func newBackend() *backend {
	return &backend{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
	}
}

func (b *backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

func (b *backend) addUser(u *model.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[u.ID] = u
}

func (b *backend) addLead(userID, name, email string) *model.Lead {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := &model.Lead{
		ID:     b.nextID("lead"),
		UserID: userID,
		Name:   name,
		Email:  email,
		Status: model.LeadStatusNew,
	}
	b.leads = append(b.leads, l)
	return l
}

func (b *backend) addJob(userID, leadID, title string) *model.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	j := &model.Job{
		ID:     b.nextID("job"),
		UserID: userID,
		LeadID: leadID,
		Title:  title,
		Status: model.JobStatusScheduled,
		Value:  1200,
	}
	b.jobs = append(b.jobs, j)
	return j
}

// expireSessions はすべてのセッションを無効にする。
func (b *backend) expireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = make(map[string]*model.Session)
}

func (b *backend) leadNames(userID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, l := range b.leads {
		if l.UserID == userID {
			names = append(names, l.Name)
		}
	}
	return names
}

func (b *backend) jobsFor(userID string) []model.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Job
	for _, j := range b.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	return out
}

// --- AuthServiceInterface ---

type authService struct{ b *backend }

func (s authService) Login(_ context.Context, email, password string, _ bool) (*auth.LoginResult, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if password != testPassword {
		return nil, model.NewInvalidCredentialsError()
	}
	for _, u := range s.b.users {
		if u.Email == email {
			sess := &model.Session{
				ID:        s.b.nextID("sess"),
				UserID:    u.ID,
				ExpiresAt: time.Now().Add(time.Hour),
			}
			s.b.sessions[sess.ID] = sess
			copied := *u
			return &auth.LoginResult{Session: sess, User: &copied, MaxAge: 3600}, nil
		}
	}
	return nil, model.NewInvalidCredentialsError()
}

func (s authService) Logout(_ context.Context, sessionID string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.sessions, sessionID)
	return nil
}

func (s authService) GetCurrentUser(_ context.Context, sessionID string) (*model.User, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	sess, ok := s.b.sessions[sessionID]
	if !ok {
		return nil, auth.ErrNotAuthenticated
	}
	u, ok := s.b.users[sess.UserID]
	if !ok {
		return nil, auth.ErrNotAuthenticated
	}
	copied := *u
	return &copied, nil
}

// --- SessionFinder / UserFinder ---

type sessionFinder struct{ b *backend }

func (f sessionFinder) FindByID(_ context.Context, id string) (*model.Session, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	return f.b.sessions[id], nil
}

type userFinder struct{ b *backend }

func (f userFinder) FindByID(_ context.Context, id string) (*model.User, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	u, ok := f.b.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// --- LeadServiceInterface ---

type leadService struct{ b *backend }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s leadService) List(_ context.Context, userID string) ([]*model.Lead, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	var out []*model.Lead
	for _, l := range s.b.leads {
		if l.UserID == userID {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s leadService) Get(_ context.Context, userID, leadID string) (*model.Lead, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for _, l := range s.b.leads {
		if l.UserID == userID && l.ID == leadID {
			copied := *l
			return &copied, nil
		}
	}
	return nil, model.NewLeadNotFoundError(leadID)
}

func (s leadService) exactMatchesLocked(userID string, in model.LeadInput) []*model.Lead {
	email, phone := deref(in.Email), deref(in.Phone)
	var out []*model.Lead
	for _, l := range s.b.leads {
		if l.UserID != userID {
			continue
		}
		if (email != "" && l.Email == email) || (phone != "" && l.Phone == phone) {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out
}

func (s leadService) Create(_ context.Context, userID string, in model.LeadInput) (*model.Lead, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	u := s.b.users[userID]
	if !u.HasLeadCapacity() {
		return nil, model.NewLeadLimitError(u.CurrentMonthLeads, u.MonthlyLeadLimit)
	}
	if len(s.exactMatchesLocked(userID, in)) > 0 {
		return nil, model.NewDuplicateLeadError()
	}
	l := &model.Lead{
		ID:      s.b.nextID("lead"),
		UserID:  userID,
		Name:    deref(in.Name),
		Email:   deref(in.Email),
		Phone:   deref(in.Phone),
		Company: deref(in.Company),
		Source:  deref(in.Source),
		Notes:   deref(in.Notes),
		Status:  model.LeadStatusNew,
	}
	s.b.leads = append(s.b.leads, l)
	u.CurrentMonthLeads++
	copied := *l
	return &copied, nil
}

func (s leadService) Update(ctx context.Context, userID, leadID string, _ model.LeadInput) (*model.Lead, error) {
	return s.Get(ctx, userID, leadID)
}

func (s leadService) Delete(_ context.Context, userID, leadID string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for i, l := range s.b.leads {
		if l.UserID == userID && l.ID == leadID {
			s.b.leads = append(s.b.leads[:i], s.b.leads[i+1:]...)
			return nil
		}
	}
	return model.NewLeadNotFoundError(leadID)
}

func (s leadService) CheckDuplicates(_ context.Context, userID string, in model.LeadInput) (*model.DuplicateCheck, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	exact := s.exactMatchesLocked(userID, in)
	return &model.DuplicateCheck{
		HasExactDuplicates: len(exact) > 0,
		ExactMatches:       exact,
	}, nil
}

// --- JobServiceInterface ---

type jobService struct{ b *backend }

func (s jobService) List(_ context.Context, userID, leadID string) ([]*model.Job, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	var out []*model.Job
	for _, j := range s.b.jobs {
		if j.UserID == userID && (leadID == "" || j.LeadID == leadID) {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s jobService) Get(_ context.Context, userID, jobID string) (*model.Job, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for _, j := range s.b.jobs {
		if j.UserID == userID && j.ID == jobID {
			copied := *j
			return &copied, nil
		}
	}
	return nil, model.NewJobNotFoundError(jobID)
}

func (s jobService) Create(_ context.Context, userID string, in model.JobInput) (*model.Job, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	j := &model.Job{
		ID:            s.b.nextID("job"),
		UserID:        userID,
		LeadID:        deref(in.LeadID),
		Title:         deref(in.Title),
		Description:   deref(in.Description),
		Status:        model.JobStatusScheduled,
		ScheduledDate: in.ScheduledDate,
	}
	if in.Value != nil {
		j.Value = *in.Value
	}
	s.b.jobs = append(s.b.jobs, j)
	copied := *j
	return &copied, nil
}

func (s jobService) Update(ctx context.Context, userID, jobID string, _ model.JobInput) (*model.Job, error) {
	return s.Get(ctx, userID, jobID)
}

func (s jobService) Delete(_ context.Context, _, _ string) error {
	return nil
}

// --- リクエスト記録 ---

// requestLog はサーバーが受けたリクエストを "METHOD /path" 単位で数える。
type requestLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *requestLog) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		if l.counts == nil {
			l.counts = make(map[string]int)
		}
		l.counts[r.Method+" "+r.URL.Path]++
		l.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (l *requestLog) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key]
}

func (l *requestLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts = nil
}

// newTestServer は本番と同じルーターでテストサーバーを起動する。
func newTestServer(t *testing.T, b *backend) (*httptest.Server, *requestLog) {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionFinder: sessionFinder{b},
		UserFinder:    userFinder{b},
		RateLimiter:   rl,
		AuthService:   authService{b},
		LeadService:   leadService{b},
		JobService:    jobService{b},
	})

	log := &requestLog{}
	srv := httptest.NewServer(log.wrap(router))
	t.Cleanup(srv.Close)
	return srv, log
}
