package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory identity gateway
// ---------------------------------------------------------------------------

type fakeIdentity struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Account
	passwords map[string]string
	seq       int

	getErr    error // returned by GetAccount and GetAccountByEmail when set
	updateErr error
	deleteErr error

	// beforeCreate runs, unlocked, at the start of every CreateAccount call.
	beforeCreate func()

	creates int
	updates int
	deletes int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts:  make(map[string]*domain.Account),
		passwords: make(map[string]string),
	}
}

// seed stores an account directly and returns its id.
func (f *fakeIdentity) seed(email, name, role string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("uid-%03d", f.seq)
	f.accounts[id] = &domain.Account{ID: id, Email: email, DisplayName: name, Role: role}
	return id
}

func (f *fakeIdentity) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

func (f *fakeIdentity) account(id string) (domain.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return domain.Account{}, false
	}
	return *a, true
}

func (f *fakeIdentity) byEmailLocked(email string) *domain.Account {
	for _, a := range f.accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

func (f *fakeIdentity) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a := f.byEmailLocked(email)
	if a == nil {
		return nil, domain.ErrAccountNotFound
	}
	clone := *a
	return &clone, nil
}

func (f *fakeIdentity) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	clone := *a
	return &clone, nil
}

func (f *fakeIdentity) CreateAccount(_ context.Context, in domain.NewAccount) (*domain.Account, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byEmailLocked(in.Email) != nil {
		return nil, domain.ErrEmailConflict
	}
	f.seq++
	f.creates++
	id := fmt.Sprintf("uid-%03d", f.seq)
	a := &domain.Account{
		ID:          id,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Disabled:    in.Disabled,
		Role:        in.Role,
	}
	f.accounts[id] = a
	f.passwords[id] = in.Password
	clone := *a
	return &clone, nil
}

func (f *fakeIdentity) UpdateAccount(_ context.Context, id string, upd domain.AccountUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if upd.Email != nil {
		if other := f.byEmailLocked(*upd.Email); other != nil && other.ID != id {
			return domain.ErrEmailConflict
		}
		a.Email = *upd.Email
	}
	if upd.DisplayName != nil {
		a.DisplayName = *upd.DisplayName
	}
	if upd.Disabled != nil {
		a.Disabled = *upd.Disabled
	}
	f.updates++
	return nil
}

func (f *fakeIdentity) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(f.accounts, id)
	delete(f.passwords, id)
	f.deletes++
	return nil
}

func (f *fakeIdentity) VerifyBearerToken(context.Context, string) (*domain.Claims, error) {
	return nil, domain.ErrInvalidToken
}

func (f *fakeIdentity) CheckPassword(_ context.Context, email, password string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byEmailLocked(email)
	if a == nil || a.Disabled || f.passwords[a.ID] != password {
		return nil, domain.ErrInvalidCredentials
	}
	clone := *a
	return &clone, nil
}

// ---------------------------------------------------------------------------
// In-memory document store
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any

	getErr    error
	setErr    error
	updateErr error
	deleteErr error
	queryErr  error
	batchErr  error

	panicOnDelete bool
	// onGetMiss runs, outside the lock, after a Get found nothing.
	onGetMiss func(collection, id string)

	mutations int // successful Set, Create, Update, Delete and AtomicBatch calls
	batches   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string]map[string]map[string]any)}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (s *fakeStore) put(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(collection, id, fields)
}

func (s *fakeStore) putLocked(collection, id string, fields map[string]any) {
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]map[string]any)
		s.collections[collection] = c
	}
	c[id] = copyFields(fields)
}

func (s *fakeStore) doc(collection, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.collections[collection][id]
	if !ok {
		return nil, false
	}
	return copyFields(d), true
}

func (s *fakeStore) where(collection, field string, value any) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, d := range s.collections[collection] {
		if d[field] == value {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *fakeStore) Get(_ context.Context, collection, id string) (*domain.Document, error) {
	s.mu.Lock()
	if s.getErr != nil {
		s.mu.Unlock()
		return nil, s.getErr
	}
	d, ok := s.collections[collection][id]
	if ok {
		doc := &domain.Document{ID: id, Fields: copyFields(d)}
		s.mu.Unlock()
		return doc, nil
	}
	hook := s.onGetMiss
	s.mu.Unlock()
	if hook != nil {
		hook(collection, id)
	}
	return nil, domain.ErrDocumentNotFound
}

func (s *fakeStore) Create(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	if _, ok := s.collections[collection][id]; ok {
		return domain.ErrDocumentExists
	}
	s.putLocked(collection, id, fields)
	s.mutations++
	return nil
}

func (s *fakeStore) Set(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.putLocked(collection, id, fields)
	s.mutations++
	return nil
}

func (s *fakeStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	d, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	for k, v := range fields {
		d[k] = v
	}
	s.mutations++
	return nil
}

func (s *fakeStore) Delete(_ context.Context, collection, id string) error {
	if s.panicOnDelete {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.collections[collection], id)
	s.mutations++
	return nil
}

func (s *fakeStore) QueryEquals(_ context.Context, collection, field string, value any, limit int) ([]domain.Document, error) {
	s.mu.Lock()
	if s.queryErr != nil {
		s.mu.Unlock()
		return nil, s.queryErr
	}
	s.mu.Unlock()

	var out []domain.Document
	for _, id := range s.where(collection, field, value) {
		if limit > 0 && len(out) == limit {
			break
		}
		d, _ := s.doc(collection, id)
		out = append(out, domain.Document{ID: id, Fields: d})
	}
	return out, nil
}

func (s *fakeStore) QueryEqualsNot(_ context.Context, collection, field string, value any, notField string, notValue any, limit int) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var ids []string
	for id, d := range s.collections[collection] {
		if d[field] == value && d[notField] != notValue {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []domain.Document
	for _, id := range ids {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, domain.Document{ID: id, Fields: copyFields(s.collections[collection][id])})
	}
	return out, nil
}

func (s *fakeStore) AtomicBatch(_ context.Context, ops []ports.BatchOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	for _, op := range ops {
		if op.Kind == ports.BatchUpdate {
			if _, ok := s.collections[op.Collection][op.ID]; !ok {
				return fmt.Errorf("batch update %s/%s: %w", op.Collection, op.ID, domain.ErrDocumentNotFound)
			}
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case ports.BatchSet:
			s.putLocked(op.Collection, op.ID, op.Fields)
		case ports.BatchUpdate:
			for k, v := range op.Fields {
				s.collections[op.Collection][op.ID][k] = v
			}
		case ports.BatchDelete:
			delete(s.collections[op.Collection], op.ID)
		}
	}
	s.mutations++
	s.batches++
	return nil
}

// seedEnrollment stores an enrollment of studentID in courseID.
func (s *fakeStore) seedEnrollment(id, studentID, studentEmail, courseID string) {
	s.put(domain.CollectionEnrollments, id, domain.Enrollment{
		StudentID:    studentID,
		StudentEmail: studentEmail,
		CourseID:     courseID,
		Status:       "active",
		EnrolledAt:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	}.Fields())
}

// ---------------------------------------------------------------------------
// Claims, report cache and token stubs
// ---------------------------------------------------------------------------

type stubClaims struct {
	mu       sync.Mutex
	held     map[string]string
	claimErr error
	claimed  int
	released int
}

func newStubClaims() *stubClaims {
	return &stubClaims{held: make(map[string]string)}
}

func (c *stubClaims) Claim(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimErr != nil {
		return "", false, c.claimErr
	}
	if _, ok := c.held[key]; ok {
		return "", false, nil
	}
	c.claimed++
	token := fmt.Sprintf("tok-%d", c.claimed)
	c.held[key] = token
	return token, true, nil
}

func (c *stubClaims) Release(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[key] == token {
		delete(c.held, key)
		c.released++
	}
	return nil
}

type stubCache struct {
	mu      sync.Mutex
	reports map[string]ports.BulkReport
	loadErr error
	stores  int
}

func newStubCache() *stubCache {
	return &stubCache{reports: make(map[string]ports.BulkReport)}
}

func (c *stubCache) Load(_ context.Context, key string) (*ports.BulkReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	r, ok := c.reports[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *stubCache) Store(_ context.Context, key string, report *ports.BulkReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[key] = *report
	c.stores++
	return nil
}

type stubTokens struct {
	err error
}

func (t stubTokens) Issue(acct *domain.Account, ttl time.Duration) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return fmt.Sprintf("token:%s:%s:%s", acct.ID, acct.Role, ttl), nil
}

var errStoreDown = errors.New("connection refused")
